package alerts

import (
	"context"
	"log/slog"
	"time"

	"github.com/nikoksr/notify"
	"github.com/nikoksr/notify/service/discord"
	"github.com/nikoksr/notify/service/twilio"
)

const sendTimeout = 10 * time.Second

// NewNotifier builds a notifier from whichever services have credentials.
func NewNotifier(cfg Config) (*notify.Notify, error) {
	slog.Debug(">>NewNotifier")
	defer slog.Debug("<<NewNotifier")

	var services []notify.Notifier

	if len(cfg.DiscordBotToken) != 0 {
		slog.Info("Discord bot token present, configuring notifier")

		discordService := discord.New()
		if err := discordService.AuthenticateWithBotToken(cfg.DiscordBotToken); err != nil {
			return nil, err
		}
		discordService.AddReceivers(cfg.DiscordChannelID)
		services = append(services, discordService)
	}

	if len(cfg.TwilioAccountSID) != 0 {
		slog.Info("Twilio account information present, configuring notifier")

		twilioService, err := twilio.New(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioFromPhone)
		if err != nil {
			return nil, err
		}
		twilioService.AddReceivers(cfg.TwilioToPhone)
		services = append(services, twilioService)
	}

	if len(services) == 0 {
		return nil, ErrNoServices
	}

	notifier := notify.New()
	notifier.UseServices(services...)

	return notifier, nil
}

// New creates the queue. A nil sender is allowed; messages are then only logged.
func New(sender Sender, subject string) *Alerts {
	if len(subject) == 0 {
		subject = DefaultSubject
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Alerts{
		ctx:      ctx,
		cancel:   cancel,
		sender:   sender,
		subject:  subject,
		NotifyCh: make(chan NotificationTask, DefaultQueueSize),
	}
}

func (a *Alerts) Start() {
	a.wg.Add(1)
	go a.monitorNotifications()
}

// Notify queues a message without blocking. When the queue is full the
// message is dropped and logged.
func (a *Alerts) Notify(message string) {
	select {
	case a.NotifyCh <- NotificationTask{Message: message}:
	default:
		slog.Warn("notification queue is full, dropping message", "message", message)
	}
}

// CancelAndWait stops the delivery goroutine after it finishes the current send.
func (a *Alerts) CancelAndWait() {
	a.cancel()
	a.wg.Wait()
}

func (a *Alerts) monitorNotifications() {
	slog.Debug(">>monitorNotifications")
	defer slog.Debug("<<monitorNotifications")

	defer a.wg.Done()

	for {
		select {
		case <-a.ctx.Done():
			slog.Debug("monitorNotifications: context done")
			return

		case task := <-a.NotifyCh:
			a.send(task.Message)
		}
	}
}

func (a *Alerts) send(message string) {
	if a.sender == nil {
		slog.Warn("Notifier is not registered for notifications", "message", message)
		return
	}

	ctx, cancel := context.WithTimeout(a.ctx, sendTimeout)
	defer cancel()

	if err := a.sender.Send(ctx, a.subject, message); err != nil {
		slog.Error("failed to send message", "error", err, "message", message)
	}
}
