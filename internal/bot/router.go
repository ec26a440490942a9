// Package bot routes Telegram updates to game operations: slash commands
// for admins and players, inline-button callbacks for the roster.
package bot

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"rallybot/internal/game"
	rtsup "rallybot/internal/runtime/supervisor"
	kit "rallybot/internal/transport"
	logx "rallybot/pkg/logx"
)

const updateQueueSize = 128

type Bot struct {
	ad       kit.Adapter
	svc      *game.Service
	settings game.SettingsFunc
	// admins returns the current admin user IDs; reads the live config so
	// hot reloads apply without restart.
	admins func() []int64
	log    logx.Logger

	updates chan kit.Update
	sup     *rtsup.Supervisor
}

func New(ad kit.Adapter, svc *game.Service, settings game.SettingsFunc, admins func() []int64, log logx.Logger) *Bot {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Bot{
		ad:       ad,
		svc:      svc,
		settings: settings,
		admins:   admins,
		log:      log,
		updates:  make(chan kit.Update, updateQueueSize),
	}
}

func (b *Bot) isAdmin(userID int64) bool {
	for _, id := range b.admins() {
		if id == userID {
			return true
		}
	}
	return false
}

// Start connects the adapter and runs the dispatch loop until ctx ends.
func (b *Bot) Start(ctx context.Context) error {
	b.sup = rtsup.New(ctx, rtsup.WithLogger(b.log.With(logx.String("comp", "bot"))))

	if err := b.ad.Start(b.sup.Context(), b.updates); err != nil {
		return err
	}

	b.sup.GoRestart("bot.dispatch", func(c context.Context) error {
		for {
			select {
			case <-c.Done():
				return nil
			case up := <-b.updates:
				b.dispatch(c, up)
			}
		}
	})

	b.publishMenu(ctx)
	return nil
}

func (b *Bot) Stop(ctx context.Context) error {
	if err := b.ad.Stop(ctx); err != nil {
		b.log.Warn("adapter stop failed", logx.Err(err))
	}
	if b.sup == nil {
		return nil
	}
	b.sup.Cancel()
	return b.sup.Wait(ctx)
}

func (b *Bot) publishMenu(ctx context.Context) {
	mu, ok := b.ad.(kit.CommandMenuUpdater)
	if !ok {
		return
	}
	var cmds []kit.BotCommand
	for _, c := range b.commands() {
		if c.adminOnly {
			continue // keep the public menu short; admins know /help
		}
		cmds = append(cmds, kit.BotCommand{Command: c.name, Description: c.description})
	}
	if err := mu.UpdateMenuCommands(ctx, cmds); err != nil {
		b.log.Warn("menu publish failed", logx.Err(err))
	}
}

// dispatch handles one update. A panicking handler must not kill the loop.
func (b *Bot) dispatch(ctx context.Context, up kit.Update) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("handler panicked",
				logx.Any("panic", r),
				logx.String("stack", string(debug.Stack())))
		}
	}()

	switch up.Kind {
	case kit.UpdateMessage:
		if up.Message != nil {
			b.handleMessage(ctx, up.Message)
		}
	case kit.UpdateCallback:
		if up.Callback != nil {
			b.handleCallback(ctx, up.Callback)
		}
	}
}

// splitCommand parses "/cmd@botname arg1 arg2" into name and args.
// Non-command text returns an empty name.
func splitCommand(text string) (string, []string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil
	}
	fields := strings.Fields(text[1:])
	if len(fields) == 0 {
		return "", nil
	}
	name := strings.ToLower(fields[0])
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return name, fields[1:]
}

func (b *Bot) handleMessage(ctx context.Context, msg *kit.Message) {
	name, args := splitCommand(msg.Text)
	if name == "" {
		return
	}
	for _, c := range b.commands() {
		if c.name != name {
			continue
		}
		if c.adminOnly && !b.isAdmin(msg.FromID) {
			if err := b.replyText(ctx, msg, "Admins only."); err != nil {
				b.log.Debug("reply failed", logx.Err(err))
			}
			return
		}
		b.log.Debug("command",
			logx.String("cmd", name),
			logx.Int64("from", msg.FromID),
			logx.Int("args", len(args)))
		if err := c.handle(ctx, msg, args); err != nil {
			b.log.Warn("command failed", logx.String("cmd", name), logx.Err(err))
			if e := b.replyText(ctx, msg, fmt.Sprintf("Command failed: %v", err)); e != nil {
				b.log.Debug("reply failed", logx.Err(e))
			}
		}
		return
	}
	// Unknown commands are ignored: in a group chat most slash commands
	// belong to other bots.
}
