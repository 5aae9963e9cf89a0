package mail

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
	boom bool
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.boom {
		panic("socket exploded")
	}
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func TestDispatcher_Send(t *testing.T) {
	d := &fakeDialer{}
	s := NewDispatcherWithDialer(d, "sales@leadforge.io", "Leadforge Sales", "", nil)

	res := s.Send(context.Background(), OutboundEmail{
		To:        "ana@acme.io",
		ToName:    "Ana Souza",
		Subject:   "Hello",
		HTML:      "<p>Hi</p>",
		Text:      "Hi",
		MessageID: "3f1c",
	})
	require.True(t, res.Success, res.Error)
	assert.Equal(t, "<3f1c@leadforge.io>", res.ProviderMessageID)
	require.Len(t, d.sent, 1)

	m := d.sent[0]
	assert.Equal(t, []string{"<3f1c@leadforge.io>"}, m.GetHeader("Message-Id"))
	assert.Equal(t, []string{"Hello"}, m.GetHeader("Subject"))
	assert.Equal(t, []string{`"Ana Souza" <ana@acme.io>`}, m.GetHeader("To"))

	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "text/plain")
	assert.Contains(t, buf.String(), "text/html")
}

func TestDispatcher_GeneratesMessageIDWhenMissing(t *testing.T) {
	d := &fakeDialer{}
	s := NewDispatcherWithDialer(d, "sales@leadforge.io", "", "mx.leadforge.io", nil)

	res := s.Send(context.Background(), OutboundEmail{To: "ana@acme.io", Subject: "x", HTML: "<p>x</p>"})
	require.True(t, res.Success)
	assert.Regexp(t, `^<[0-9a-f-]{36}@mx\.leadforge\.io>$`, res.ProviderMessageID)
}

func TestDispatcher_Failures(t *testing.T) {
	t.Run("empty recipient", func(t *testing.T) {
		d := &fakeDialer{}
		res := NewDispatcherWithDialer(d, "a@b.io", "", "", nil).Send(context.Background(), OutboundEmail{To: "  "})
		assert.False(t, res.Success)
		assert.Equal(t, "recipient address is empty", res.Error)
		assert.Empty(t, d.sent)
	})

	t.Run("smtp error", func(t *testing.T) {
		d := &fakeDialer{err: errors.New("535 authentication failed")}
		res := NewDispatcherWithDialer(d, "a@b.io", "", "", nil).Send(context.Background(), OutboundEmail{To: "x@y.io"})
		assert.False(t, res.Success)
		assert.Equal(t, "smtp send: 535 authentication failed", res.Error)
	})

	t.Run("transport panic", func(t *testing.T) {
		d := &fakeDialer{boom: true}
		res := NewDispatcherWithDialer(d, "a@b.io", "", "", nil).Send(context.Background(), OutboundEmail{To: "x@y.io"})
		assert.False(t, res.Success)
		assert.Contains(t, res.Error, "socket exploded")
	})

	t.Run("cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		d := &fakeDialer{}
		res := NewDispatcherWithDialer(d, "a@b.io", "", "", nil).Send(ctx, OutboundEmail{To: "x@y.io"})
		assert.False(t, res.Success)
		assert.Empty(t, d.sent)
	})
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "leadforge.io", domainOf("sales@leadforge.io"))
	assert.Equal(t, "leadforge.io", domainOf("Sales <sales@leadforge.io>"))
	assert.Equal(t, "localhost", domainOf("nobody"))
	assert.Equal(t, "localhost", domainOf("trailing@"))
}
