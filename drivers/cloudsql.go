// Package drivers opens connections that a postgres URL cannot describe.
package drivers

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
)

const cloudSQLInstance = "cloudsql-instance-connection-name"

// IsCloudSQL reports whether connection is a Cloud SQL descriptor such as
// "cloudsql-instance-connection-name=proj:region:db user=hse@proj.iam db=hse use-private-ip=true".
func IsCloudSQL(connection string) bool {
	return ParseParams(connection)[cloudSQLInstance] != ""
}

// CloudSQLConfig returns a pgx config that dials the instance with IAM authentication.
func CloudSQLConfig(ctx context.Context, connection string) (*pgx.ConnConfig, error) {
	params := ParseParams(connection)
	instance := params[cloudSQLInstance]
	if instance == "" {
		return nil, fmt.Errorf("%s is required", cloudSQLInstance)
	}
	if params["user"] == "" || params["db"] == "" {
		return nil, fmt.Errorf("user and db are required for cloud sql instance %s", instance)
	}
	usePrivateIP, _ := strconv.ParseBool(params["use-private-ip"])

	dialer, err := cloudsqlconn.NewDialer(ctx, cloudsqlconn.WithIAMAuthN())
	if err != nil {
		return nil, fmt.Errorf("cloudsqlconn.NewDialer: %w", err)
	}

	var opts []cloudsqlconn.DialOption
	if usePrivateIP {
		opts = append(opts, cloudsqlconn.WithPrivateIP())
	}

	config, err := pgx.ParseConfig(fmt.Sprintf("user=%s database=%s", params["user"], params["db"]))
	if err != nil {
		return nil, err
	}
	config.DialFunc = func(ctx context.Context, _, _ string) (net.Conn, error) {
		return dialer.Dial(ctx, instance, opts...)
	}
	return config, nil
}

// ParseParams splits space separated key=value pairs; tokens without '=' are ignored.
func ParseParams(input string) map[string]string {
	params := make(map[string]string)
	for _, pair := range strings.Fields(input) {
		if k, v, ok := strings.Cut(pair, "="); ok {
			params[k] = v
		}
	}
	return params
}
