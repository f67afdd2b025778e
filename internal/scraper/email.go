package scraper

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"io"
	"net"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset" // non-UTF-8 bodies
	"github.com/emersion/go-message/mail"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/parser"
	"github.com/IshaanNene/NewsHound/internal/types"
)

const (
	imapDialTimeout = 15 * time.Second
	imapTimeout     = 30 * time.Second
	metaSourceLink  = "source_link"
)

// mailbox is an open, selected IMAP mailbox.
type mailbox interface {
	// UnseenUIDs lists the UIDs of all unseen messages.
	UnseenUIDs() ([]uint32, error)
	// Fetch reads the given messages without setting their \Seen flag.
	Fetch(uids []uint32) ([]rawMessage, error)
	// Latest returns the last n messages regardless of flags.
	Latest(n int) ([]rawMessage, error)
	MarkSeen(uids ...uint32) error
	MarkUnseen(uids ...uint32) error
	Close() error
}

type rawMessage struct {
	UID  uint32
	Seen bool
	Body []byte
}

type dialFunc func(ctx context.Context, opts *config.EmailOptions) (mailbox, error)

// EmailScraper turns unseen mailbox messages into items. Messages stay unseen
// until Ack is called for their items. Messages it cannot use (filtered out,
// unparseable, without a text body) stay unread but no longer count against
// the batch window.
type EmailScraper struct {
	base
	opts       *config.EmailOptions
	classifier *classifier
	senders    *keywordSet
	subjects   *keywordSet
	dial       dialFunc

	mu      sync.Mutex
	skipped map[uint32]struct{}
}

// parsedMessage is the part of a message we keep.
type parsedMessage struct {
	MessageID string
	From      string
	Subject   string
	Date      time.Time
	Text      string
	HTML      string
}

// MessageSummary describes one message for operator listings.
type MessageSummary struct {
	UID     uint32
	From    string
	Subject string
	Date    time.Time
	Seen    bool
}

// NewEmailScraper creates an IMAP scraper.
func NewEmailScraper(src *config.SourceConfig, deps Deps) (*EmailScraper, error) {
	opts := src.Email
	if opts == nil || opts.IMAPServer == "" || opts.Username == "" {
		return nil, fmt.Errorf("email scraper %q: %w: imap_server and username", src.Name, types.ErrNotConfigured)
	}
	return &EmailScraper{
		base:       newBase(src, deps.Fetcher, deps.Logger, "email"),
		opts:       opts,
		classifier: newClassifier(opts.SocialKeywords),
		senders:    newKeywordSet(opts.SenderFilter),
		subjects:   newKeywordSet(opts.SubjectFilter),
		dial:       dialIMAP,
		skipped:    make(map[uint32]struct{}),
	}, nil
}

// Scrape reads a batch of unseen messages.
func (s *EmailScraper) Scrape(ctx context.Context) []*types.Item {
	mb, err := s.dial(ctx, s.opts)
	if err != nil {
		s.logger.Error("imap connection failed", "server", s.opts.IMAPServer, "error", err)
		return nil
	}
	defer mb.Close()

	unseen, err := mb.UnseenUIDs()
	if err != nil {
		s.logger.Error("imap search failed", "mailbox", s.opts.Mailbox, "error", err)
		return nil
	}
	msgs, err := mb.Fetch(s.window(unseen))
	if err != nil {
		s.logger.Error("imap fetch failed", "mailbox", s.opts.Mailbox, "error", err)
		return nil
	}

	var items []*types.Item
	for _, raw := range msgs {
		if ctx.Err() != nil {
			break
		}
		msg, err := parseMessage(bytes.NewReader(raw.Body))
		if err != nil {
			s.logger.Warn("unparseable message", "uid", raw.UID, "error", err)
			s.skip(raw.UID)
			continue
		}
		if !s.senders.allows(msg.From) || !s.subjects.allows(msg.Subject) {
			s.logger.Debug("message filtered out", "uid", raw.UID, "from", msg.From)
			s.skip(raw.UID)
			continue
		}
		it := s.messageItem(ctx, raw.UID, msg)
		if it == nil {
			s.skip(raw.UID)
			continue
		}
		items = append(items, it)
	}
	s.logger.Info("email scrape complete", "unseen", len(unseen), "fetched", len(msgs), "items", len(items))
	return items
}

// window drops skipped UIDs from unseen and keeps the newest MaxMessages.
// Skipped UIDs that are no longer unseen are forgotten.
func (s *EmailScraper) window(unseen []uint32) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	still := make(map[uint32]struct{}, len(s.skipped))
	candidates := make([]uint32, 0, len(unseen))
	for _, uid := range unseen {
		if _, ok := s.skipped[uid]; ok {
			still[uid] = struct{}{}
			continue
		}
		candidates = append(candidates, uid)
	}
	s.skipped = still
	return newest(candidates, s.opts.MaxMessages)
}

func (s *EmailScraper) skip(uid uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipped[uid] = struct{}{}
}

// FetchFullContent has nothing to add: messages carry their whole body.
func (s *EmailScraper) FetchFullContent(_ context.Context, _ string) (string, bool) {
	return "", false
}

// Ack marks the messages behind items as read.
func (s *EmailScraper) Ack(ctx context.Context, items []*types.Item) error {
	var uids []uint32
	for _, it := range items {
		uid, err := strconv.ParseUint(it.GetMeta(types.MetaMessageUID), 10, 32)
		if err == nil && uid > 0 {
			uids = append(uids, uint32(uid))
		}
	}
	if len(uids) == 0 {
		return nil
	}

	mb, err := s.dial(ctx, s.opts)
	if err != nil {
		return err
	}
	defer mb.Close()
	if err := mb.MarkSeen(uids...); err != nil {
		return fmt.Errorf("marking %d messages seen: %w", len(uids), err)
	}
	s.logger.Debug("messages marked seen", "count", len(uids))
	return nil
}

// Recent lists the last n messages of the mailbox. With markUnread their
// \Seen flag is cleared so the next cycle processes them again.
func (s *EmailScraper) Recent(ctx context.Context, n int, markUnread bool) ([]MessageSummary, error) {
	mb, err := s.dial(ctx, s.opts)
	if err != nil {
		return nil, err
	}
	defer mb.Close()

	msgs, err := mb.Latest(n)
	if err != nil {
		return nil, err
	}

	out := make([]MessageSummary, 0, len(msgs))
	uids := make([]uint32, 0, len(msgs))
	for _, raw := range msgs {
		sum := MessageSummary{UID: raw.UID, Seen: raw.Seen}
		if msg, err := parseMessage(bytes.NewReader(raw.Body)); err == nil {
			sum.From, sum.Subject, sum.Date = msg.From, msg.Subject, msg.Date
		}
		out = append(out, sum)
		uids = append(uids, raw.UID)
	}

	if markUnread && len(uids) > 0 {
		if err := mb.MarkUnseen(uids...); err != nil {
			return out, fmt.Errorf("marking messages unread: %w", err)
		}
		for i := range out {
			out[i].Seen = false
		}
	}
	return out, nil
}

func (s *EmailScraper) messageItem(ctx context.Context, uid uint32, msg *parsedMessage) *types.Item {
	text, htmlImage := messageText(msg)
	if text == "" {
		s.logger.Debug("message without text body", "uid", uid)
		return nil
	}

	links := findLinks(msg.Text + "\n" + msg.HTML)
	kind := s.classifier.Classify(msg.Subject, msg.Text+"\n"+msg.HTML)

	var image, source string
	if kind == ContentSocial {
		image, source = socialMedia(links)
	} else {
		source = pressSource(links)
	}
	if image == "" {
		image = htmlImage
	}

	content := text
	if extra := s.summarizeLinks(ctx, links); extra != "" {
		content += "\n\n" + extra
	}

	title := strings.TrimSpace(msg.Subject)
	if title == "" {
		title = "Comunicato da " + s.src.Name
	}

	item := types.NewItem(messageURL(msg.MessageID, s.opts, uid))
	item.Title = truncate(title, maxTitleLength)
	item.Preview = truncate(text, maxPreviewLength)
	item.Content = content
	item.ImageURL = image
	item.Source = s.src.Name
	item.PublishedAt = msg.Date
	item.SetMeta(types.MetaSender, msg.From)
	item.SetMeta(types.MetaSubject, msg.Subject)
	item.SetMeta(types.MetaContentType, kind)
	item.SetMeta(types.MetaMessageUID, strconv.FormatUint(uint64(uid), 10))
	if source != "" {
		item.SetMeta(metaSourceLink, source)
	}
	return item
}

// messageText picks the best body, HTML first, and returns it as plain text
// with hashtags and mentions turned into words. The first usable <img> of the
// HTML body is returned too.
func messageText(msg *parsedMessage) (text, image string) {
	if msg.HTML != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(msg.HTML)); err == nil {
			doc.Find("script, style").Remove()
			doc.Find("br").ReplaceWithHtml("\n")
			text = parser.BlockText(doc.Find("body"))
			doc.Find("img").EachWithBreak(func(_ int, img *goquery.Selection) bool {
				src := parser.ImageSource(img)
				if strings.HasPrefix(src, "http") && !parser.IsDecorativeImage(src) {
					image = types.EscapePathSpaces(src)
					return false
				}
				return true
			})
		}
	}
	if text == "" {
		text = strings.TrimSpace(msg.Text)
	}
	text = html.UnescapeString(text)
	return plainMentions(text), image
}

// messageURL builds the dedup key of a message. The mid: scheme addresses a
// message by its Message-ID; without one the IMAP UID is used.
func messageURL(messageID string, opts *config.EmailOptions, uid uint32) string {
	if id := strings.Trim(strings.TrimSpace(messageID), "<>"); id != "" {
		return "mid:" + url.PathEscape(id)
	}
	return fmt.Sprintf("imap://%s@%s/%s;UID=%d", url.PathEscape(opts.Username), opts.IMAPServer, url.PathEscape(opts.Mailbox), uid)
}

// parseMessage reads headers and the text/plain and text/html parts.
// Attachments are skipped.
func parseMessage(r io.Reader) (*parsedMessage, error) {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return nil, err
	}
	defer mr.Close()

	msg := &parsedMessage{}
	msg.MessageID, _ = mr.Header.MessageID()
	msg.Subject, _ = mr.Header.Subject()
	msg.Date, _ = mr.Header.Date()
	if from, err := mr.Header.AddressList("From"); err == nil && len(from) > 0 {
		msg.From = from[0].Address
		if from[0].Name != "" {
			msg.From = from[0].Name + " <" + from[0].Address + ">"
		}
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil {
			if msg.Text != "" || msg.HTML != "" {
				break
			}
			return nil, err
		}
		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}
		switch ct {
		case "text/html":
			if msg.HTML == "" {
				msg.HTML = string(body)
			}
		case "text/plain", "":
			if msg.Text == "" {
				msg.Text = string(body)
			}
		}
	}
	return msg, nil
}

// dialIMAP connects over implicit TLS and falls back to STARTTLS on a plain
// connection when the TLS handshake fails.
func dialIMAP(_ context.Context, o *config.EmailOptions) (mailbox, error) {
	addr := net.JoinHostPort(o.IMAPServer, strconv.Itoa(o.IMAPPort))
	tlsConfig := &tls.Config{ServerName: o.IMAPServer}
	dialer := &net.Dialer{Timeout: imapDialTimeout}

	c, err := client.DialWithDialerTLS(dialer, addr, tlsConfig)
	if err != nil {
		c, err = client.DialWithDialer(dialer, addr)
		if err != nil {
			return nil, &types.FetchError{URL: "imap://" + addr, Err: err, Retryable: true}
		}
		ok, err := c.SupportStartTLS()
		if err != nil || !ok {
			_ = c.Logout()
			return nil, &types.FetchError{URL: "imap://" + addr, Err: fmt.Errorf("server offers neither TLS nor STARTTLS")}
		}
		if err := c.StartTLS(tlsConfig); err != nil {
			_ = c.Logout()
			return nil, &types.FetchError{URL: "imap://" + addr, Err: fmt.Errorf("starttls: %w", err)}
		}
	}
	c.Timeout = imapTimeout

	if err := c.Login(o.Username, o.Password); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap login as %s: %w", o.Username, err)
	}
	if _, err := c.Select(o.Mailbox, false); err != nil {
		_ = c.Logout()
		return nil, fmt.Errorf("imap select %s: %w", o.Mailbox, err)
	}
	return &imapMailbox{c: c}, nil
}

type imapMailbox struct {
	c *client.Client
}

func (m *imapMailbox) UnseenUIDs() ([]uint32, error) {
	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	return m.c.UidSearch(criteria)
}

func (m *imapMailbox) Latest(n int) ([]rawMessage, error) {
	uids, err := m.c.UidSearch(imap.NewSearchCriteria())
	if err != nil {
		return nil, err
	}
	return m.Fetch(newest(uids, n))
}

func (m *imapMailbox) Fetch(uids []uint32) ([]rawMessage, error) {
	if len(uids) == 0 {
		return nil, nil
	}
	seq := new(imap.SeqSet)
	seq.AddNum(uids...)

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchUid, imap.FetchFlags, section.FetchItem()}

	ch := make(chan *imap.Message, len(uids))
	done := make(chan error, 1)
	go func() {
		done <- m.c.UidFetch(seq, items, ch)
	}()

	var out []rawMessage
	for msg := range ch {
		body := msg.GetBody(section)
		if body == nil {
			continue
		}
		data, err := io.ReadAll(body)
		if err != nil {
			continue
		}
		out = append(out, rawMessage{
			UID:  msg.Uid,
			Seen: slices.Contains(msg.Flags, imap.SeenFlag),
			Body: data,
		})
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return out, nil
}

func (m *imapMailbox) MarkSeen(uids ...uint32) error {
	return m.store(imap.AddFlags, uids)
}

func (m *imapMailbox) MarkUnseen(uids ...uint32) error {
	return m.store(imap.RemoveFlags, uids)
}

func (m *imapMailbox) store(op imap.FlagsOp, uids []uint32) error {
	seq := new(imap.SeqSet)
	seq.AddNum(uids...)
	return m.c.UidStore(seq, imap.FormatFlagsOp(op, true), []interface{}{imap.SeenFlag}, nil)
}

func (m *imapMailbox) Close() error {
	return m.c.Logout()
}

// newest keeps the last n uids, which are the most recent messages.
func newest(uids []uint32, n int) []uint32 {
	slices.Sort(uids)
	if n > 0 && len(uids) > n {
		return uids[len(uids)-n:]
	}
	return uids
}

