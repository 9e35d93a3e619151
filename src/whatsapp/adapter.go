// Package whatsapp connects the bot to WhatsApp through whatsmeow. Menus are
// sent as numbered lists; the user answers with a number or a label.
package whatsapp

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/thomasfsr/gymlog/src/bot"
	"github.com/thomasfsr/gymlog/src/menu"
)

const handleTimeout = 2 * time.Minute

// Client is the subset of *whatsmeow.Client the adapter uses.
type Client interface {
	SendMessage(ctx context.Context, to types.JID, message *waE2E.Message, extra ...whatsmeow.SendRequestExtra) (whatsmeow.SendResponse, error)
	Download(ctx context.Context, msg whatsmeow.DownloadableMessage) ([]byte, error)
}

type Handler interface {
	Handle(ctx context.Context, ev bot.Event) *bot.Response
}

type Adapter struct {
	client  Client
	handler Handler
	log     zerolog.Logger

	mu    sync.Mutex
	menus map[int64][]menu.Option
}

func New(client Client, handler Handler, log zerolog.Logger) *Adapter {
	return &Adapter{
		client:  client,
		handler: handler,
		log:     log,
		menus:   make(map[int64][]menu.Option),
	}
}

// EventHandler is registered with whatsmeow's AddEventHandler.
func (a *Adapter) EventHandler(evt any) {
	switch v := evt.(type) {
	case *events.Message:
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()
		a.HandleMessage(ctx, v)
	case *events.Connected:
		a.log.Info().Msg("whatsapp connected")
	case *events.Disconnected:
		a.log.Warn().Msg("whatsapp disconnected")
	case *events.LoggedOut:
		a.log.Error().Bool("on_connect", v.OnConnect).Msg("whatsapp logged out")
	}
}

func (a *Adapter) HandleMessage(ctx context.Context, v *events.Message) {
	if v.Info.IsFromMe || v.Info.IsGroup || v.Message == nil {
		return
	}
	sender := v.Info.Sender
	userID, err := strconv.ParseInt(sender.User, 10, 64)
	if err != nil {
		a.log.Warn().Err(err).Str("sender", sender.String()).Msg("sender is not numeric")
		return
	}
	log := a.log.With().Int64("user_id", userID).Str("message_id", v.Info.ID).Logger()

	ev, ok := a.toEvent(ctx, userID, v)
	if !ok {
		return
	}
	ev.Name = v.Info.PushName

	resp := a.handler.Handle(ctx, ev)
	if resp == nil {
		log.Debug().Str("kind", string(ev.Kind)).Msg("no reply")
		return
	}
	if len(resp.Options) > 0 {
		a.mu.Lock()
		a.menus[userID] = resp.Options
		a.mu.Unlock()
	}

	to := types.JID{User: sender.User, Server: sender.Server}
	if _, err := a.client.SendMessage(ctx, to, &waE2E.Message{Conversation: proto.String(Render(resp))}); err != nil {
		log.Error().Err(err).Msg("send reply")
		return
	}
	log.Debug().Msg("reply sent")
}

func (a *Adapter) toEvent(ctx context.Context, userID int64, v *events.Message) (bot.Event, bool) {
	if doc := v.Message.GetDocumentMessage(); doc != nil {
		name := doc.GetFileName()
		var data []byte
		if strings.EqualFold(filepath.Ext(name), ".csv") {
			var err error
			data, err = a.client.Download(ctx, doc)
			if err != nil {
				a.log.Error().Err(err).Int64("user_id", userID).Str("file", name).Msg("download document")
				return bot.Event{}, false
			}
		}
		return bot.Upload(userID, name, data), true
	}

	text := messageText(v.Message)
	if text == "" {
		return bot.Event{}, false
	}
	a.mu.Lock()
	last := a.menus[userID]
	a.mu.Unlock()
	return Resolve(userID, text, last), true
}

func messageText(m *waE2E.Message) string {
	var message string
	if m.GetConversation() != "" {
		message = m.GetConversation()
	}
	if ext := m.GetExtendedTextMessage(); ext != nil && ext.Text != nil {
		message = ext.GetText()
	}
	if img := m.GetImageMessage(); img != nil && img.Caption != nil {
		message = img.GetCaption()
	}
	return strings.TrimSpace(message)
}

// Resolve turns a text message into an event: "/cmd" is a command, a number
// or label from the last menu is a button press, anything else is text.
func Resolve(userID int64, text string, last []menu.Option) bot.Event {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(text[1:], " ")
		return bot.Command(userID, cmd)
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(text, ".")); err == nil && n >= 1 && n <= len(last) {
		return bot.Button(userID, last[n-1].Payload)
	}
	for _, opt := range last {
		if strings.EqualFold(opt.Label, text) {
			return bot.Button(userID, opt.Payload)
		}
	}
	return bot.Text(userID, text)
}

func Render(resp *bot.Response) string {
	if len(resp.Options) == 0 {
		return resp.Text
	}
	var b strings.Builder
	b.WriteString(resp.Text)
	b.WriteString("\n")
	for i, opt := range resp.Options {
		fmt.Fprintf(&b, "\n%d. %s", i+1, opt.Label)
	}
	return b.String()
}
