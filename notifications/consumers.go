package notifications

import (
	gocontext "context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/flanksource/hse/api"
	"github.com/flanksource/hse/context"
	"github.com/flanksource/hse/evidence"
	"github.com/flanksource/hse/models"
	"github.com/flanksource/hse/postq"
	"github.com/flanksource/hse/postq/pg"
	"github.com/flanksource/hse/pubsub"
)

const (
	EventEmail  = "notification.email"
	EventStream = "notification.stream"
)

// EventNames lists the event_queue names domain events are published under.
func EventNames() []string {
	return lo.Map(models.NotificationTypes, func(t models.NotificationType, _ int) string {
		return t.EventName()
	})
}

type ConsumerOptions struct {
	// Mailer delivers notification emails, nil disables email.
	Mailer Mailer

	// Forwarder publishes handled events to an event stream, nil disables it.
	Forwarder *pubsub.Forwarder

	// BaseURL is prefixed to links in emails.
	BaseURL string

	// RecordEvents keeps the last n claimed events of every consumer.
	RecordEvents int
}

// Consumers turns queued domain events into notifications, emails and
// event stream messages, and removes the blobs of deleted evidence.
type Consumers struct {
	opts ConsumerOptions

	Dispatcher  *postq.SyncEventConsumer
	Email       *postq.AsyncEventConsumer
	Stream      *postq.AsyncEventConsumer
	BlobCleanup *postq.SyncEventConsumer
}

func NewConsumers(opts ConsumerOptions) *Consumers {
	c := &Consumers{opts: opts}

	c.Dispatcher = &postq.SyncEventConsumer{
		WatchEvents: EventNames(),
		Consumers:   postq.SyncHandlers(c.dispatch),
	}
	c.Email = &postq.AsyncEventConsumer{
		WatchEvents: []string{EventEmail},
		BatchSize:   10,
		Consumer:    c.sendEmails,
	}
	c.Stream = &postq.AsyncEventConsumer{
		WatchEvents: []string{EventStream},
		BatchSize:   50,
		Consumer:    c.forward,
	}
	c.BlobCleanup = evidence.NewBlobCleanup()

	if opts.RecordEvents > 0 {
		c.Dispatcher.RecordEvents(opts.RecordEvents)
		c.Email.RecordEvents(opts.RecordEvents)
		c.Stream.RecordEvents(opts.RecordEvents)
		c.BlobCleanup.RecordEvents(opts.RecordEvents)
	}
	return c
}

// NewConsumersFromConfig wires SMTP and the event stream from the config.
func NewConsumersFromConfig(config api.Config) (*Consumers, error) {
	opts := ConsumerOptions{BaseURL: config.BaseURL, RecordEvents: 50}
	if config.Email.Enabled() {
		opts.Mailer = NewSMTPMailer(config.Email)
	}
	if config.EventStream != "" {
		forwarder, err := pubsub.NewForwarder(config.EventStream)
		if err != nil {
			return nil, err
		}
		opts.Forwarder = forwarder
	}
	return NewConsumers(opts), nil
}

func (c *Consumers) dispatch(ctx context.Context, e models.Event) error {
	event, err := models.DomainEventFromProperties(e.Properties)
	if err != nil {
		return api.Errorf(api.EINVALID, "invalid %s event %s", e.Name, e.ID).WithDebugInfo("%v", err)
	}

	notification, err := Dispatch(ctx, event)
	if err != nil {
		return err
	}

	if notification != nil && c.opts.Mailer != nil && ctx.Properties().On(true, context.PropertyEmailNotifications) {
		if _, err := postq.Enqueue(ctx, EventEmail, map[string]string{"notification_id": notification.ID.String()}); err != nil {
			return err
		}
	}

	if c.opts.Forwarder != nil && ctx.Properties().On(true, context.PropertyEventStream) {
		if _, err := postq.Enqueue(ctx, EventStream, e.Properties); err != nil {
			return err
		}
	}
	return nil
}

func (c *Consumers) sendEmails(ctx context.Context, events models.Events) models.Events {
	var failed models.Events
	for _, e := range events {
		if err := c.sendEmail(ctx, e); err != nil {
			ctx.Warnf("email for %s failed: %v", e.Properties["notification_id"], err)
			e.SetError(err.Error())
			failed = append(failed, e)
		}
	}
	return failed
}

func (c *Consumers) sendEmail(ctx context.Context, e models.Event) error {
	if c.opts.Mailer == nil {
		return nil
	}

	id, err := uuid.Parse(e.Properties["notification_id"])
	if err != nil {
		return fmt.Errorf("invalid notification_id %q: %w", e.Properties["notification_id"], err)
	}

	var notification models.Notification
	if err := ctx.DB().Where("id = ?", id).First(&notification).Error; err != nil {
		return err
	}
	if notification.EmailSent {
		return nil
	}

	person, err := recipient(ctx, notification.RecipientID)
	if err != nil {
		return err
	} else if person == nil || person.Email == "" {
		ctx.Debugf("recipient %s has no email address, skipping %s", notification.RecipientID, notification.Title)
		return nil
	}

	email, err := RenderEmail(ctx, *person, notification, c.opts.BaseURL)
	if err != nil {
		return err
	}
	if err := c.opts.Mailer.Send(ctx, email); err != nil {
		return err
	}

	return ctx.DB().Model(&notification).Updates(map[string]any{
		"email_sent":    true,
		"email_sent_at": ctx.Now(),
	}).Error
}

func (c *Consumers) forward(ctx context.Context, events models.Events) models.Events {
	if c.opts.Forwarder == nil {
		return nil
	}

	var failed models.Events
	for _, e := range events {
		event, err := models.DomainEventFromProperties(e.Properties)
		if err == nil {
			err = c.opts.Forwarder.Forward(ctx, event)
		}
		if err != nil {
			e.SetError(err.Error())
			failed = append(failed, e)
		}
	}
	return failed
}

// ConsumeAll drains every queue once: domain events first, then the emails
// and stream messages they produced, then blob deletes.
func (c *Consumers) ConsumeAll(ctx context.Context) error {
	var errs []error
	for _, fn := range []postq.ConsumerFunc{c.Dispatcher.Handle, c.Email.Handle, c.Stream.Handle, c.BlobCleanup.Handle} {
		for {
			count, err := fn(ctx)
			if err != nil {
				errs = append(errs, err)
				break
			}
			if count == 0 {
				break
			}
		}
	}
	return errors.Join(errs...)
}

// Start consumes in the background, woken by postgres notifications, until ctx is done.
func (c *Consumers) Start(ctx context.Context) error {
	router := pg.NewNotifyRouter()

	consumers := []struct {
		events  []string
		handler postq.ConsumerFunc
		opts    *postq.ConsumerOption
	}{
		{c.Dispatcher.WatchEvents, c.Dispatcher.Handle, c.Dispatcher.ConsumerOption},
		{c.Email.WatchEvents, c.Email.Handle, c.Email.ConsumerOption},
		{c.Stream.WatchEvents, c.Stream.Handle, c.Stream.ConsumerOption},
		{c.BlobCleanup.WatchEvents, c.BlobCleanup.Handle, c.BlobCleanup.ConsumerOption},
	}

	for _, consumer := range consumers {
		pgConsumer, err := postq.NewPGConsumer(consumer.handler, consumer.opts)
		if err != nil {
			return err
		}
		pgConsumer.Listen(ctx, router.RegisterRoutes(consumer.events...))
	}

	go router.Run(ctx, postq.NotifyChannel)

	if c.opts.Forwarder != nil {
		go func() {
			<-ctx.Done()
			if err := c.opts.Forwarder.Close(ctx.Wrap(gocontext.Background())); err != nil {
				ctx.Warnf("failed to close event stream: %v", err)
			}
		}()
	}
	return nil
}
