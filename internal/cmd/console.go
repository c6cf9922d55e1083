package cmd

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/router-for-me/oauth-cli-kit/internal/auth/oauth"
	sdkauth "github.com/router-for-me/oauth-cli-kit/sdk/auth"
)

var (
	colorSuccess = lipgloss.Color("#22C55E") // green
	colorWarning = lipgloss.Color("#EAB308") // yellow
	colorError   = lipgloss.Color("#EF4444") // red
	colorInfo    = lipgloss.Color("#3B82F6") // blue
	colorMuted   = lipgloss.Color("#6B7280") // gray

	infoStyle     = lipgloss.NewStyle().Foreground(colorInfo)
	warningStyle  = lipgloss.NewStyle().Foreground(colorWarning)
	errorStyle    = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	successStyle  = lipgloss.NewStyle().Foreground(colorSuccess)
	progressStyle = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	labelStyle    = lipgloss.NewStyle().Foreground(colorInfo).Bold(true).Width(12)
)

// console renders user-facing text on stderr so stdout stays pipeable.
type console struct {
	mu  sync.Mutex
	out io.Writer
}

func newConsole(out io.Writer) *console {
	return &console{out: out}
}

func (c *console) println(style lipgloss.Style, msg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, style.Render(msg))
}

// notify implements sdkauth.LoginOptions.Notify.
func (c *console) notify(kind sdkauth.NoticeKind, msg string) {
	switch kind {
	case sdkauth.NoticeURL:
		// URLs are printed unstyled so terminals keep them clickable and copyable.
		c.mu.Lock()
		_, _ = fmt.Fprintln(c.out, msg)
		c.mu.Unlock()
	case sdkauth.NoticeWarn:
		c.println(warningStyle, msg)
	case sdkauth.NoticeProgress:
		c.println(progressStyle, msg)
	default:
		c.println(infoStyle, msg)
	}
}

// prompt writes text without a trailing newline.
func (c *console) prompt(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprint(c.out, infoStyle.Render(text)+" ")
}

func (c *console) success(msg string) {
	c.println(successStyle, msg)
}

func (c *console) field(label, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, _ = fmt.Fprintln(c.out, labelStyle.Render(label)+value)
}

func (c *console) failure(err error) {
	if oauth.IsOAuthError(err) || oauth.IsAuthenticationError(err) {
		c.println(errorStyle, oauth.GetUserFriendlyMessage(err))
		if authErr, ok := errors.AsType[*oauth.AuthenticationError](err); ok && authErr.Cause != nil {
			c.println(progressStyle, authErr.Error())
		}
		return
	}
	c.println(errorStyle, "Error: "+err.Error())
}
