package main

import (
	"chat-sync/auth"
	"chat-sync/domain/chat"
	"chat-sync/errors"
	"chat-sync/projection"
	"chat-sync/runtime"
	"chat-sync/search"
	"chat-sync/services"
	"chat-sync/sink"
	"context"
	stdErrors "errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/olekukonko/tablewriter"
)

const help = `commands:
  register <email> <password>   create an account and sign in
  login <email> <password>      sign in
  logout                        sign out
  whoami                        show the signed-in user
  search <prefix>               find users by email prefix
  open <email>                  open the conversation with a user
  send <text>                   send a message in the open conversation
  close                         close the open conversation
  list                          show your conversations
  /find <terms> [--with email] [--limit n]   search your messages
  quit                          leave`

// shell is the interactive front end: one signed-in user, at most one
// open conversation.
type shell struct {
	app         *app
	out         io.Writer
	sessionPath string
	searchLimit int

	mu         sync.Mutex // guards out and the fields below
	self       *chat.User
	list       *runtime.ListView
	thread     *runtime.Thread
	stopThread func()
	printed    map[string]struct{} // message IDs already on screen
	stopAuth   func()
}

func newShell(app *app, out io.Writer, sessionPath string, searchLimit int) *shell {
	return &shell{app: app, out: out, sessionPath: sessionPath, searchLimit: searchLimit}
}

// start follows the auth state and restores the saved session if any.
func (s *shell) start(ctx context.Context) {
	s.stopAuth = s.app.identity.OnAuthChange(ctx, func(state services.AuthState) {
		s.onAuthChange(ctx, state.User)
	})
	token, err := os.ReadFile(s.sessionPath)
	if err != nil || len(token) == 0 {
		return
	}
	if _, err := s.app.provider.Restore(ctx, strings.TrimSpace(string(token))); err != nil {
		s.app.log.Info("Saved session not restored", "error", err)
		_ = os.Remove(s.sessionPath)
	}
}

func (s *shell) stop() {
	s.mu.Lock()
	stopAuth := s.stopAuth
	s.mu.Unlock()
	if stopAuth != nil {
		stopAuth()
	}
	s.closeViews()
}

// execute runs one command line. It returns true when the shell must exit.
func (s *shell) execute(ctx context.Context, line string) (bool, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}
	command, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch command {
	case "quit", "exit":
		return true, nil
	case "help":
		s.println(help)
		return false, nil
	case "register", "login":
		return false, s.authenticate(ctx, command, rest)
	case "logout":
		s.app.provider.SignOut()
		_ = os.Remove(s.sessionPath)
		return false, nil
	case "whoami":
		self, err := s.current()
		if err != nil {
			return false, err
		}
		s.println(color.Cyan.Sprintf("%s (%s), %d open view(s)", self.Email, self.ID, s.app.engine.OpenViewsFor(self.ID)))
		return false, nil
	case "search":
		return false, s.searchUsers(ctx, rest)
	case "open":
		return false, s.open(ctx, rest)
	case "send":
		return false, s.send(ctx, rest)
	case "close":
		s.closeThread()
		return false, nil
	case "list":
		return false, s.showList()
	case "/find":
		return false, s.find(ctx, line)
	}
	return false, fmt.Errorf("unknown command %q, type help", command)
}

func (s *shell) authenticate(ctx context.Context, command, args string) error {
	email, password, ok := strings.Cut(args, " ")
	if !ok {
		return fmt.Errorf("usage: %s <email> <password>", command)
	}
	var session auth.Session
	var err error
	if command == "register" {
		session, err = s.app.provider.SignUp(ctx, email, strings.TrimSpace(password))
	} else {
		session, err = s.app.provider.SignIn(ctx, email, strings.TrimSpace(password))
	}
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.sessionPath, []byte(session.Token), 0o600); err != nil {
		s.app.log.Warn("Session not saved", "path", s.sessionPath, "error", err)
	}
	return nil
}

func (s *shell) onAuthChange(ctx context.Context, user *chat.User) {
	s.closeViews()
	if user == nil {
		s.println(color.Yellow.Sprint("signed out"))
		return
	}
	notifier := sink.NewNotifier(user.ID, s.notify, s.app.log)
	list, err := s.app.engine.OpenConversationList(ctx, *user, notifier)
	if err != nil {
		s.println(color.Red.Sprintf("conversation list unavailable: %v", err))
	}

	s.mu.Lock()
	s.self = user
	s.list = list
	s.mu.Unlock()
	s.println(color.Green.Sprintf("signed in as %s", user.Email))
}

func (s *shell) notify(n sink.Notification) {
	s.mu.Lock()
	open := s.thread != nil && s.thread.Other().ID == n.From.ID
	s.mu.Unlock()
	if open {
		return
	}
	s.println(color.Magenta.Sprintf("new message from %s: %s", n.From.Email, n.Message.Text))
}

func (s *shell) searchUsers(ctx context.Context, prefix string) error {
	self, err := s.current()
	if err != nil {
		return err
	}
	users, err := s.app.identity.SearchUsersByEmailPrefix(ctx, self, prefix)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		s.println("no user found")
		return nil
	}
	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{u.Email, u.ID})
	}
	s.table([]string{"Email", "ID"}, rows)
	return nil
}

func (s *shell) open(ctx context.Context, email string) error {
	self, err := s.current()
	if err != nil {
		return err
	}
	email = chat.NormalizeEmail(email)
	users, err := s.app.identity.SearchUsersByEmailPrefix(ctx, self, email)
	if err != nil {
		return err
	}
	var other *chat.User
	for _, u := range users {
		if u.Email == email {
			other = &u
			break
		}
	}
	if other == nil {
		return fmt.Errorf("no user with email %q", email)
	}

	s.closeThread()
	thread, err := s.app.engine.OpenThread(ctx, self, *other)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.thread = thread
	s.printed = make(map[string]struct{})
	s.mu.Unlock()
	s.println(color.Green.Sprintf("conversation with %s", other.Email))

	stop := thread.OnChange(s.render)
	s.mu.Lock()
	s.stopThread = stop
	s.mu.Unlock()
	s.render(thread.Messages())
	return nil
}

// render prints the messages not printed yet. Snapshots that only confirm
// what is on screen print nothing.
func (s *shell) render(messages []chat.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.thread == nil {
		return
	}
	for _, m := range messages {
		if _, ok := s.printed[m.ID]; ok {
			continue
		}
		s.printed[m.ID] = struct{}{}
		who := color.Cyan.Sprint(m.Author.DisplayName)
		if s.self != nil && m.Author.ID == s.self.ID {
			who = color.Gray.Sprint("me")
		}
		_, _ = fmt.Fprintf(s.out, "[%s] %s: %s\n", m.CreatedAt.Time().Format(time.Kitchen), who, m.Text)
	}
}

func (s *shell) send(ctx context.Context, text string) error {
	s.mu.Lock()
	thread := s.thread
	s.mu.Unlock()
	if thread == nil {
		return fmt.Errorf("no open conversation, use open <email>")
	}
	_, err := thread.Send(ctx, chat.Draft{Text: text})
	if stdErrors.Is(err, errors.ErrWriteFailure) {
		return fmt.Errorf("message not sent: %w", err)
	}
	return err
}

func (s *shell) showList() error {
	if _, err := s.current(); err != nil {
		return err
	}
	s.mu.Lock()
	list := s.list
	s.mu.Unlock()
	if list == nil {
		return fmt.Errorf("conversation list unavailable")
	}
	summaries := list.Summaries()
	if len(summaries) == 0 {
		s.println("no conversation yet")
		return nil
	}
	rows := make([][]string, 0, len(summaries))
	for _, summary := range summaries {
		rows = append(rows, summaryRow(summary))
	}
	s.table([]string{"With", "Last message", "At"}, rows)
	return nil
}

func summaryRow(summary projection.Summary) []string {
	last, at := "", ""
	if summary.Last != nil {
		last = summary.Last.Text
		at = summary.Last.CreatedAt.Time().Format(time.DateTime)
	}
	return []string{summary.Other.Email, last, at}
}

func (s *shell) find(ctx context.Context, line string) error {
	self, err := s.current()
	if err != nil {
		return err
	}
	hits, err := s.app.index.Search(ctx, self.ID, search.ParseQuery(line, s.searchLimit))
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		s.println("no message found")
		return nil
	}
	rows := make([][]string, 0, len(hits))
	for _, hit := range hits {
		rows = append(rows, []string{hit.AuthorName, hit.Text, hit.CreatedAt.Time().Format(time.DateTime)})
	}
	s.table([]string{"From", "Message", "At"}, rows)
	return nil
}

func (s *shell) current() (chat.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.self == nil {
		return chat.User{}, errors.ErrUnauthenticated
	}
	return *s.self, nil
}

func (s *shell) closeThread() {
	s.mu.Lock()
	thread, stop := s.thread, s.stopThread
	s.thread, s.stopThread = nil, nil
	s.mu.Unlock()
	if stop != nil {
		stop()
	}
	if thread != nil {
		thread.Close()
	}
}

func (s *shell) closeViews() {
	s.closeThread()
	s.mu.Lock()
	list := s.list
	s.list, s.self = nil, nil
	s.mu.Unlock()
	if list != nil {
		list.Close()
	}
}

func (s *shell) println(a ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, _ = fmt.Fprintln(s.out, a...)
}

func (s *shell) table(header []string, rows [][]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table := tablewriter.NewWriter(s.out)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.AppendBulk(rows)
	table.Render()
}
