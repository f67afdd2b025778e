package scraper

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IshaanNene/NewsHound/internal/config"
	"github.com/IshaanNene/NewsHound/internal/types"
)

type fakeMailbox struct {
	messages []rawMessage
	seen     []uint32
	unseen   []uint32
	fetched  []uint32
	closed   int
}

func (f *fakeMailbox) UnseenUIDs() ([]uint32, error) {
	var out []uint32
	for _, m := range f.messages {
		if !m.Seen {
			out = append(out, m.UID)
		}
	}
	return out, nil
}

func (f *fakeMailbox) Fetch(uids []uint32) ([]rawMessage, error) {
	f.fetched = append(f.fetched, uids...)
	var out []rawMessage
	for _, m := range f.messages {
		if slices.Contains(uids, m.UID) {
			out = append(out, m)
		}
	}
	return out, nil
}

func (f *fakeMailbox) Latest(n int) ([]rawMessage, error) {
	if len(f.messages) > n {
		return f.messages[len(f.messages)-n:], nil
	}
	return f.messages, nil
}

func (f *fakeMailbox) MarkSeen(uids ...uint32) error {
	f.seen = append(f.seen, uids...)
	for i := range f.messages {
		if slices.Contains(uids, f.messages[i].UID) {
			f.messages[i].Seen = true
		}
	}
	return nil
}

func (f *fakeMailbox) MarkUnseen(uids ...uint32) error {
	f.unseen = append(f.unseen, uids...)
	return nil
}

func (f *fakeMailbox) Close() error {
	f.closed++
	return nil
}

func rfc822(lines ...string) []byte {
	return []byte(strings.Join(lines, "\r\n"))
}

var socialMessage = rfc822(
	"From: Ufficio Stampa <stampa@comune.carpi.mo.it>",
	"To: redazione@example.com",
	"Subject: Nuovo post del Comune",
	"Message-ID: <post-1@comune.carpi.mo.it>",
	"Date: Mon, 06 Oct 2025 10:00:00 +0200",
	"MIME-Version: 1.0",
	"Content-Type: text/plain; charset=utf-8",
	"",
	"Inaugurata oggi la nuova biblioteca @ComuneCarpi #Carpi pic.twitter.com/abc123",
	"https://twitter.com/ComuneCarpi/status/1234567890",
	"Per info scrivere a info@comune.carpi.mo.it",
)

func pressMessage(link string) []byte {
	return rfc822(
		"From: Ufficio Stampa <stampa@comune.carpi.mo.it>",
		"Subject: Comunicato: lavori in via Roma",
		"Message-ID: <cs-2@comune.carpi.mo.it>",
		"Date: Tue, 07 Oct 2025 09:00:00 +0200",
		"MIME-Version: 1.0",
		`Content-Type: multipart/alternative; boundary="b1"`,
		"",
		"--b1",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"Testo semplice del comunicato.",
		"--b1",
		"Content-Type: text/html; charset=utf-8",
		"",
		`<html><body><p>Da luned&igrave; iniziano i lavori in via Roma.</p>`+
			`<p><img src="https://www.comune.carpi.mo.it/uploads/via-roma.jpg"></p>`+
			`<p>Dettagli: <a href="`+link+`">`+link+`</a> e <a href="https://www.facebook.com/comune">facebook</a></p></body></html>`,
		"--b1--",
		"",
	)
}

func emailScraper(t *testing.T, mb *fakeMailbox, opts *config.EmailOptions) *EmailScraper {
	t.Helper()
	if opts.IMAPServer == "" {
		opts.IMAPServer = "imap.example.com"
		opts.Username = "redazione"
	}
	if opts.MaxMessages == 0 {
		opts.MaxMessages = 10
	}
	opts.Mailbox = "INBOX"
	s, err := NewEmailScraper(&config.SourceConfig{Name: "Comunicati", Kind: config.KindEmail, Email: opts}, testDeps(t))
	require.NoError(t, err)
	s.dial = func(context.Context, *config.EmailOptions) (mailbox, error) { return mb, nil }
	return s
}

func TestEmailSocialMessage(t *testing.T) {
	mb := &fakeMailbox{messages: []rawMessage{{UID: 41, Body: socialMessage}}}
	s := emailScraper(t, mb, &config.EmailOptions{})

	items := s.Scrape(context.Background())
	require.Len(t, items, 1)
	it := items[0]

	assert.Equal(t, ContentSocial, it.GetMeta(types.MetaContentType))
	assert.Equal(t, "https://pic.twitter.com/abc123", it.ImageURL)
	assert.Equal(t, "https://twitter.com/ComuneCarpi/status/1234567890", it.GetMeta(metaSourceLink))
	assert.Contains(t, it.Content, "biblioteca ComuneCarpi Carpi")
	assert.NotContains(t, it.Content, "@ComuneCarpi")
	assert.Contains(t, it.Content, "info@comune.carpi.mo.it", "e-mail addresses stay intact")
	assert.Equal(t, "Nuovo post del Comune", it.Title)
	assert.Equal(t, "mid:post-1@comune.carpi.mo.it", it.URL)
	assert.Equal(t, "41", it.GetMeta(types.MetaMessageUID))
	assert.Empty(t, mb.seen, "messages are only marked seen on Ack")
	assert.Equal(t, 1, mb.closed)
}

func TestEmailPressMessagePrefersHTMLAndSummarizesLinks(t *testing.T) {
	article := `<html><head><title>Lavori in via Roma</title></head><body><article>` +
		strings.Repeat(`<p>Il cantiere per il rifacimento della pavimentazione di via Roma durerà tre settimane e comporterà la chiusura al traffico del tratto compreso tra piazza Martiri e corso Alberto Pio.</p>`, 5) +
		`</article></body></html>`
	srv := serve(t, map[string]http.HandlerFunc{"/notizie/via-roma": writeHTML(article)})
	link := srv.URL + "/notizie/via-roma"

	mb := &fakeMailbox{messages: []rawMessage{{UID: 7, Body: pressMessage(link)}}}
	s := emailScraper(t, mb, &config.EmailOptions{})

	items := s.Scrape(context.Background())
	require.Len(t, items, 1)
	it := items[0]

	assert.Equal(t, ContentPress, it.GetMeta(types.MetaContentType))
	assert.True(t, strings.HasPrefix(it.Content, "Da lunedì iniziano i lavori in via Roma."), it.Content)
	assert.NotContains(t, it.Content, "Testo semplice")
	assert.Equal(t, "https://www.comune.carpi.mo.it/uploads/via-roma.jpg", it.ImageURL)
	assert.Equal(t, link, it.GetMeta(metaSourceLink))
	assert.Contains(t, it.Content, "Fonte collegata ("+link+")")
	assert.Contains(t, it.Content, "pavimentazione di via Roma")
}

func TestEmailFilters(t *testing.T) {
	other := rfc822(
		"From: newsletter@shop.example.com",
		"Subject: Offerte",
		"Message-ID: <promo@shop>",
		"Content-Type: text/plain",
		"",
		"Sconti su tutto",
	)
	mb := &fakeMailbox{messages: []rawMessage{{UID: 1, Body: other}, {UID: 2, Body: socialMessage}}}

	s := emailScraper(t, mb, &config.EmailOptions{SenderFilter: []string{"comune.carpi.mo.it"}})
	items := s.Scrape(context.Background())
	require.Len(t, items, 1)
	assert.Equal(t, "2", items[0].GetMeta(types.MetaMessageUID))

	s = emailScraper(t, mb, &config.EmailOptions{SubjectFilter: []string{"comunicato"}})
	assert.Empty(t, s.Scrape(context.Background()))
}

func TestEmailBatchIsBounded(t *testing.T) {
	var msgs []rawMessage
	for i := uint32(1); i <= 5; i++ {
		msgs = append(msgs, rawMessage{UID: i, Body: socialMessage})
	}
	mb := &fakeMailbox{messages: msgs}
	s := emailScraper(t, mb, &config.EmailOptions{MaxMessages: 2})

	items := s.Scrape(context.Background())
	require.Len(t, items, 2)
	assert.Equal(t, "4", items[0].GetMeta(types.MetaMessageUID))
	assert.Equal(t, "5", items[1].GetMeta(types.MetaMessageUID))
}

func TestEmailSkippedMessagesLeaveTheBatchWindow(t *testing.T) {
	promo := func(id string) []byte {
		return rfc822(
			"From: newsletter@shop.example.com",
			"Subject: Offerte",
			"Message-ID: <"+id+"@shop>",
			"Content-Type: text/plain",
			"",
			"Sconti su tutto",
		)
	}
	mb := &fakeMailbox{messages: []rawMessage{
		{UID: 1, Body: socialMessage},
		{UID: 2, Body: promo("a")},
		{UID: 3, Body: promo("b")},
	}}
	s := emailScraper(t, mb, &config.EmailOptions{MaxMessages: 2, SenderFilter: []string{"comune.carpi.mo.it"}})
	ctx := context.Background()

	assert.Empty(t, s.Scrape(ctx), "the newest two are both filtered")
	assert.Equal(t, []uint32{2, 3}, mb.fetched)

	items := s.Scrape(ctx)
	require.Len(t, items, 1)
	assert.Equal(t, "1", items[0].GetMeta(types.MetaMessageUID))
	assert.Empty(t, mb.seen, "filtered mail is left unread")

	require.NoError(t, s.Ack(ctx, items))
	mb.fetched = nil
	assert.Empty(t, s.Scrape(ctx))
	assert.Empty(t, mb.fetched, "nothing left to read")
}

func TestEmailSkippedUIDsAreForgottenOnceRead(t *testing.T) {
	mb := &fakeMailbox{messages: []rawMessage{{UID: 9, Body: []byte("Subject: vuoto\r\n\r\n")}}}
	s := emailScraper(t, mb, &config.EmailOptions{})

	assert.Empty(t, s.Scrape(context.Background()))
	assert.Contains(t, s.skipped, uint32(9))

	mb.messages[0].Seen = true
	assert.Empty(t, s.Scrape(context.Background()))
	assert.Empty(t, s.skipped)
}

func TestEmailAckMarksSeen(t *testing.T) {
	mb := &fakeMailbox{}
	s := emailScraper(t, mb, &config.EmailOptions{})

	a := types.NewItem("mid:a")
	a.SetMeta(types.MetaMessageUID, "12")
	b := types.NewItem("https://example.com/no-uid")

	require.NoError(t, s.Ack(context.Background(), []*types.Item{a, b}))
	assert.Equal(t, []uint32{12}, mb.seen)

	require.NoError(t, s.Ack(context.Background(), []*types.Item{b}))
	assert.Equal(t, 1, mb.closed, "no connection without uids")
}

func TestEmailConnectionFailureYieldsNothing(t *testing.T) {
	s := emailScraper(t, &fakeMailbox{}, &config.EmailOptions{})
	s.dial = func(context.Context, *config.EmailOptions) (mailbox, error) {
		return nil, errors.New("connection refused")
	}
	assert.Empty(t, s.Scrape(context.Background()))
}

func TestEmailRecentMarkUnread(t *testing.T) {
	mb := &fakeMailbox{messages: []rawMessage{
		{UID: 1, Seen: true, Body: socialMessage},
		{UID: 2, Seen: true, Body: pressMessage("https://www.comune.it/x")},
		{UID: 3, Seen: false, Body: socialMessage},
	}}
	s := emailScraper(t, mb, &config.EmailOptions{})

	list, err := s.Recent(context.Background(), 2, true)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, uint32(2), list[0].UID)
	assert.Equal(t, "Comunicato: lavori in via Roma", list[0].Subject)
	assert.Contains(t, list[0].From, "stampa@comune.carpi.mo.it")
	assert.False(t, list[0].Seen)
	assert.Equal(t, []uint32{2, 3}, mb.unseen)
}

func TestClassifierAndMentions(t *testing.T) {
	c := newClassifier(nil)
	assert.Equal(t, ContentSocial, c.Classify("", "guarda pic.twitter.com/xyz"))
	assert.Equal(t, ContentPress, c.Classify("Comunicato stampa", "Il sindaco informa"))

	assert.Equal(t, "Grazie ComuneCarpi per Carpi2025", plainMentions("Grazie @ComuneCarpi per #Carpi2025"))
	assert.Equal(t, "scrivi a a@b.it", plainMentions("scrivi a a@b.it"))

	links := findLinks("vedi https://www.comune.it/a, pic.twitter.com/q1 e https://www.comune.it/a.")
	assert.Equal(t, []string{"https://www.comune.it/a", "https://pic.twitter.com/q1"}, links)
}
