package main

import (
	"os"
	"path"

	"github.com/flanksource/commons/logger"
	"github.com/spf13/cobra"

	"github.com/flanksource/hse/capas"
	"github.com/flanksource/hse/echo"
	"github.com/flanksource/hse/incidents"
	"github.com/flanksource/hse/risk"
	"github.com/flanksource/hse/schema/openapi"
)

var schemas = map[string]any{
	"incident":        &incidents.CreateInput{},
	"capa":            &capas.CreateInput{},
	"capa_verify":     &echo.VerifyRequest{},
	"risk_assessment": &risk.Input{},
}

var outputDir string

var generateSchema = &cobra.Command{
	Use:   "generate-schema",
	Short: "Write JSON schemas for the HTTP request bodies",
	Run: func(cmd *cobra.Command, args []string) {
		for file, obj := range schemas {
			p := path.Join(outputDir, file+".schema.json")
			if err := openapi.WriteSchemaToFile(p, obj); err != nil {
				logger.Fatalf("unable to save schema: %v", err)
			}
			logger.Infof("Saved schema to %s", p)
		}
	},
}

func main() {
	generateSchema.Flags().StringVarP(&outputDir, "output", "o", "../../schema/openapi", "directory to write the schemas to")
	if err := generateSchema.Execute(); err != nil {
		os.Exit(1)
	}
}
