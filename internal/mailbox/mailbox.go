package mailbox

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"go.uber.org/zap"
)

// Source yields the approval link the rewards network mailed to an account.
type Source interface {
	ApproveLink(ctx context.Context) (string, error)
}

// ErrLinkNotFound means no approval link showed up within the wait window.
var ErrLinkNotFound = errors.New("approval link not found")

// AuthError marks rejected mailbox credentials.
type AuthError struct {
	Email string
	Cause error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("mailbox login failed for %s: %v", e.Email, e.Cause)
}

func (e *AuthError) Unwrap() error { return e.Cause }

var linkRe = regexp.MustCompile(`https?://[^\s"'<>]*(?:confirm|verify|approve)[^\s"'<>]*`)

// ExtractLink finds the first approval-looking link in a mail body.
func ExtractLink(body string) (string, bool) {
	m := linkRe.FindString(body)
	if m == "" {
		return "", false
	}
	return strings.TrimRight(m, ".,;)"), true
}

// IMAPSource polls a mailbox over IMAP until an approval link arrives.
type IMAPSource struct {
	Email    string
	Password string
	// Domain overrides the imap server ("imap.firstmail.ltd"); derived from
	// the email domain when empty.
	Domain string
	// Folder overrides the folder scan order; INBOX plus common spam folders
	// otherwise.
	Folder string
	// Wait bounds the whole retrieval; 2 minutes when zero.
	Wait time.Duration

	Log *zap.Logger
}

func (s *IMAPSource) addr() string {
	domain := s.Domain
	if domain == "" {
		if _, d, ok := strings.Cut(s.Email, "@"); ok {
			domain = "imap." + d
		}
	}
	return domain + ":993"
}

func (s *IMAPSource) folders() []string {
	if s.Folder != "" {
		return []string{s.Folder}
	}
	return []string{"INBOX", "Junk", "Spam"}
}

func (s *IMAPSource) ApproveLink(ctx context.Context) (string, error) {
	wait := s.Wait
	if wait <= 0 {
		wait = 2 * time.Minute
	}
	deadline := time.Now().Add(wait)

	c, err := client.DialTLS(s.addr(), nil)
	if err != nil {
		return "", fmt.Errorf("imap dial %s: %w", s.addr(), err)
	}
	defer c.Logout()

	if err := c.Login(s.Email, s.Password); err != nil {
		return "", &AuthError{Email: s.Email, Cause: err}
	}

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		for _, folder := range s.folders() {
			link, ok, err := s.scanFolder(c, folder)
			if err != nil {
				if s.Log != nil {
					s.Log.Debug("mailbox scan failed",
						zap.String("email", s.Email), zap.String("folder", folder), zap.Error(err))
				}
				continue
			}
			if ok {
				return link, nil
			}
		}
		time.Sleep(10 * time.Second)
	}
	return "", fmt.Errorf("mailbox of %s: %w", s.Email, ErrLinkNotFound)
}

func (s *IMAPSource) scanFolder(c *client.Client, folder string) (string, bool, error) {
	if _, err := c.Select(folder, true); err != nil {
		return "", false, err
	}

	criteria := imap.NewSearchCriteria()
	criteria.Since = time.Now().Add(-30 * time.Minute)
	ids, err := c.Search(criteria)
	if err != nil || len(ids) == 0 {
		return "", false, err
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(ids...)
	section := &imap.BodySectionName{Peek: true}

	messages := make(chan *imap.Message, len(ids))
	done := make(chan error, 1)
	go func() {
		done <- c.Fetch(seqset, []imap.FetchItem{section.FetchItem()}, messages)
	}()

	var link string
	for msg := range messages {
		r := msg.GetBody(section)
		if r == nil {
			continue
		}
		body, err := io.ReadAll(r)
		if err != nil {
			continue
		}
		if l, ok := ExtractLink(string(body)); ok {
			link = l
		}
	}
	if err := <-done; err != nil {
		return "", false, err
	}
	return link, link != "", nil
}

// ManualSource asks the operator to paste the approval link into the
// console. Used by the semi-automatic mode.
type ManualSource struct {
	Email string
	In    io.Reader
}

func (s *ManualSource) ApproveLink(ctx context.Context) (string, error) {
	in := s.In
	if in == nil {
		in = os.Stdin
	}
	fmt.Printf("Paste approval link for %s: ", s.Email)

	lineCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		line, err := bufio.NewReader(in).ReadString('\n')
		if err != nil {
			errCh <- err
			return
		}
		lineCh <- strings.TrimSpace(line)
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case err := <-errCh:
		return "", fmt.Errorf("read approval link: %w", err)
	case line := <-lineCh:
		if line == "" {
			return "", fmt.Errorf("mailbox of %s: %w", s.Email, ErrLinkNotFound)
		}
		return line, nil
	}
}
