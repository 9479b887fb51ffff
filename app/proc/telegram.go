package proc

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/microcosm-cc/bluemonday"
	"github.com/pkg/errors"
	"golang.org/x/net/html"
	tb "gopkg.in/tucnak/telebot.v2"

	"github.com/dorominseok/festival-pj/app/models"
)

// TelegramSender sends a message, implemented by *tb.Bot
type TelegramSender interface {
	Send(to tb.Recipient, what interface{}, options ...interface{}) (*tb.Message, error)
}

// WishlistSource is the wishlist store part the notifier watches
type WishlistSource interface {
	Wishlist() []models.Festival
	Synced() bool
	Subscribe(fn func([]models.Festival)) (unsubscribe func())
}

// SessionSource reports session transitions
type SessionSource interface {
	Current() *models.User
	Subscribe(fn func(*models.User)) (unsubscribe func())
}

// TelegramNotifier posts festivals added to the wishlist to a telegram channel
type TelegramNotifier struct {
	Sender  TelegramSender
	Channel string

	mu       sync.Mutex
	known    map[int64]bool
	userID   int64
	baseline bool // waiting for the backend load of a new session user
	wg       sync.WaitGroup
}

// NewTelegramBot makes a bot for the token, the api server defaults to telegram's
func NewTelegramBot(token, apiURL string, timeout time.Duration) (*tb.Bot, error) {
	if timeout == 0 {
		timeout = time.Second * 60
	}

	if token == "" {
		return nil, errors.New("empty telegram token")
	}

	bot, err := tb.NewBot(tb.Settings{
		URL:    apiURL,
		Token:  token,
		Poller: &tb.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, errors.Wrap(err, "can't make telegram bot")
	}
	return bot, nil
}

// Watch starts posting wishlist additions. The list loaded from the backend after a
// login is taken as is, festivals toggled before or after that load are posted.
func (n *TelegramNotifier) Watch(sess SessionSource, wl WishlistSource) (unsubscribe func()) {
	n.mu.Lock()
	n.known = map[int64]bool{}
	for _, f := range wl.Wishlist() {
		n.known[f.ID] = true
	}
	n.userID = sessionUserID(sess.Current())
	n.baseline = !wl.Synced()
	n.mu.Unlock()

	unsubSession := sess.Subscribe(func(u *models.User) {
		n.mu.Lock()
		defer n.mu.Unlock()
		if id := sessionUserID(u); id != n.userID {
			n.userID, n.baseline = id, true
		}
	})
	unsubWishlist := wl.Subscribe(func(list []models.Festival) { n.onWishlist(list, wl.Synced()) })
	return func() {
		unsubWishlist()
		unsubSession()
	}
}

// Wait for messages in flight
func (n *TelegramNotifier) Wait() {
	n.wg.Wait()
}

// onWishlist posts festivals not seen before. The first synced list after a user change
// only re-seeds known.
func (n *TelegramNotifier) onWishlist(list []models.Festival, synced bool) {
	n.mu.Lock()
	current := make(map[int64]bool, len(list))
	var added []models.Festival
	for _, f := range list {
		current[f.ID] = true
		if !n.known[f.ID] {
			added = append(added, f)
		}
	}
	n.known = current
	if n.baseline && synced {
		n.baseline = false
		added = nil
	}
	n.mu.Unlock()

	for _, f := range added {
		n.wg.Add(1)
		go func(f models.Festival) {
			defer n.wg.Done()
			if err := n.send(f); err != nil {
				log.Printf("[WARN] failed to send telegram message for festival %d to %s, %v", f.ID, n.Channel, err)
			}
		}(f)
	}
}

func sessionUserID(u *models.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

func (n *TelegramNotifier) send(f models.Festival) error {
	_, err := n.Sender.Send(recipient{chatID: n.Channel}, getMessageHTML(f), tb.ModeHTML, tb.NoPreview)
	if err != nil {
		return err
	}
	log.Printf("[DEBUG] telegram message sent for festival %d to %s", f.ID, n.Channel)
	return nil
}

// StartCommands serves bot commands, blocks until ctx canceled. upcoming supplies the /upcoming reply.
func StartCommands(ctx context.Context, bot *tb.Bot, upcoming func(ctx context.Context) ([]models.Festival, error)) {
	bot.Handle(commandStart, func(m *tb.Message) {
		logCommand(commandStart, m.Chat.ID, m.Payload)
		if _, err := bot.Send(m.Sender, msgHelp); err != nil {
			log.Printf("[WARN] failed to reply %s, %v", commandStart, err)
		}
	})

	bot.Handle(commandHelp, func(m *tb.Message) {
		logCommand(commandHelp, m.Chat.ID, m.Payload)
		if _, err := bot.Send(m.Sender, msgHelp); err != nil {
			log.Printf("[WARN] failed to reply %s, %v", commandHelp, err)
		}
	})

	bot.Handle(commandUpcoming, func(m *tb.Message) {
		logCommand(commandUpcoming, m.Chat.ID, m.Payload)
		list, err := upcoming(ctx)
		if err != nil {
			log.Printf("[WARN] can't get upcoming festivals, %v", err)
			list = nil
		}
		if _, err := bot.Send(m.Chat, upcomingHTML(list, maxUpcoming), tb.ModeHTML, tb.NoPreview); err != nil {
			log.Printf("[WARN] failed to reply %s, %v", commandUpcoming, err)
		}
	})

	bot.Handle(tb.OnText, func(m *tb.Message) {
		log.Printf("[DEBUG] telegram receive unknown text: \n%s", m.Text)
	})

	go func() {
		<-ctx.Done()
		bot.Stop()
	}()
	log.Print("[INFO] telegram bot started")
	bot.Start()
}

const (
	commandStart    = "/start"
	commandHelp     = "/help"
	commandUpcoming = "/upcoming"

	maxUpcoming = 10

	msgHelp = `Use commands:
/upcoming - festivals starting soon
/help - this message
`
)

// https://core.telegram.org/bots/api#html-style
func tagLinkOnlySupport(htmlText string) string {
	p := bluemonday.NewPolicy()
	p.AllowAttrs("href").OnElements("a")
	return html.UnescapeString(p.Sanitize(htmlText))
}

// getMessageHTML generates HTML message for the wishlisted festival
func getMessageHTML(f models.Festival) string {
	// bluemonday doesn't remove escaped HTML tags
	description := tagLinkOnlySupport(html.UnescapeString(f.Description))
	description = strings.TrimSpace(description)

	title := html.EscapeString(strings.TrimSpace(f.Title))
	if f.ImageURL != "" {
		title = fmt.Sprintf("<a href=\"%s\">%s</a>", html.EscapeString(f.ImageURL), title)
	}

	messageHTML := fmt.Sprintf("<b>%s</b>", title)
	if when := period(f); when != "" {
		messageHTML += "\n" + when
	}
	if f.Location != "" {
		messageHTML += "\n" + html.EscapeString(f.Location)
	}
	if description != "" {
		messageHTML += "\n\n" + description
	}
	return messageHTML
}

func upcomingHTML(list []models.Festival, max int) string {
	if len(list) == 0 {
		return "No upcoming festivals"
	}
	if len(list) > max {
		list = list[:max]
	}
	lines := make([]string, 0, len(list))
	for _, f := range list {
		line := "• " + html.EscapeString(strings.TrimSpace(f.Title))
		if when := period(f); when != "" {
			line += ", " + when
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func period(f models.Festival) string {
	start, end := dateOnly(f.StartDate), dateOnly(f.EndDate)
	switch {
	case start == "" && end == "":
		return ""
	case start == end || end == "":
		return start
	case start == "":
		return "~ " + end
	}
	return start + " ~ " + end
}

func dateOnly(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 10 {
		s = s[:10]
	}
	return s
}

type recipient struct {
	chatID string
}

func (r recipient) Recipient() string {
	if !strings.HasPrefix(r.chatID, "@") {
		return "@" + r.chatID
	}

	return r.chatID
}

func logCommand(command string, chatID int64, payload string) {
	log.Printf("[DEBUG] telegram receive command: '%s' in chat: '%d'\n%s", command, chatID, payload)
}
