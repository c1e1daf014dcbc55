// taskctl is a terminal front end for the task tracker API.
//
// It keeps the signed-in session in a file so that consecutive invocations
// share a token, the way the browser keeps it in local storage.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/example/task-tracker/client/dashboard"
	"github.com/example/task-tracker/client/taskclient"
	"github.com/example/task-tracker/domain/task"
	"github.com/example/task-tracker/modules/activity"
	"github.com/spf13/pflag"
)

const usage = `taskctl manages your tasks on a task tracker server.

Usage:
  taskctl [global flags] <command> [flags] [args]

Commands:
  register            create an account and sign in
  login               sign in
  logout              forget the saved session
  list                show tasks (--filter All|Active|Completed|High)
  add <title>         create a task
  edit <id>           change fields of a task
  toggle <id>         flip a task between active and completed
  rm <id>             delete a task
  activity            show recent activity (--follow to stream new entries)

Global flags:
`

type app struct {
	client  *taskclient.Client
	session *dashboard.Session
	ctrl    *dashboard.Controller
	in      *bufio.Reader
	out     io.Writer
	assume  bool
	// interrupt ends on SIGINT/SIGTERM only; streams outlive --timeout.
	interrupt context.Context
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := pflag.NewFlagSet("taskctl", pflag.ContinueOnError)
	server := global.String("server", envOr("TASKS_SERVER", "http://localhost:3000"), "API base URL")
	sessionPath := global.String("session", defaultSessionPath(), "session file")
	timeout := global.Duration("timeout", 30*time.Second, "per-command timeout")
	assume := global.BoolP("yes", "y", false, "do not ask for confirmation")
	global.SetInterspersed(false)
	global.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		global.PrintDefaults()
	}

	if err := global.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	client := taskclient.New(*server)
	session, err := dashboard.OpenSession(*sessionPath, client)
	if err != nil {
		return err
	}

	a := &app{
		client:  client,
		session: session,
		in:      bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		assume:  *assume,
	}
	// Failures are returned and printed by main, so no notifier.
	a.ctrl = dashboard.New(client, dashboard.ConfirmFunc(a.confirm), nil)

	interrupt, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	a.interrupt = interrupt
	ctx, cancel := context.WithTimeout(interrupt, *timeout)
	defer cancel()

	cmd, cmdArgs := rest[0], rest[1:]
	switch cmd {
	case "register":
		return a.register(ctx, cmdArgs)
	case "login":
		return a.login(ctx, cmdArgs)
	case "logout":
		if err := a.session.Logout(); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Signed out.")
		return nil
	}

	if !a.session.LoggedIn() {
		return errors.New("not signed in, run taskctl login")
	}

	switch cmd {
	case "list", "ls":
		return a.list(ctx, cmdArgs)
	case "add":
		return a.add(ctx, cmdArgs)
	case "edit":
		return a.edit(ctx, cmdArgs)
	case "toggle", "done":
		return a.toggle(ctx, cmdArgs)
	case "rm", "delete":
		return a.remove(ctx, cmdArgs)
	case "activity":
		return a.activity(ctx, cmdArgs)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("register", pflag.ContinueOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", os.Getenv("TASKS_PASSWORD"), "password (or TASKS_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := a.client.Register(ctx, taskclient.RegisterRequest{
		Name:     a.orPrompt(*name, "Name"),
		Email:    a.orPrompt(*email, "Email"),
		Password: a.orPrompt(*password, "Password"),
	})
	if err != nil {
		return err
	}
	if err := a.session.Login(resp.Token, resp.User); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Welcome, %s.\n", resp.User.Name)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	email := fs.String("email", "", "email address")
	password := fs.String("password", os.Getenv("TASKS_PASSWORD"), "password (or TASKS_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	resp, err := a.client.Login(ctx, taskclient.LoginRequest{
		Email:    a.orPrompt(*email, "Email"),
		Password: a.orPrompt(*password, "Password"),
	})
	if err != nil {
		return err
	}
	if err := a.session.Login(resp.Token, resp.User); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Hi, %s.\n", resp.User.Name)
	return nil
}

func (a *app) list(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("list", pflag.ContinueOnError)
	filter := fs.StringP("filter", "f", string(dashboard.FilterAll), "All, Active, Completed or High")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := dashboard.ParseFilter(*filter)
	if err != nil {
		return err
	}

	if err := a.ctrl.Load(ctx); err != nil {
		return err
	}
	a.ctrl.SetFilter(f)
	printTasks(a.out, a.ctrl.Visible())
	return nil
}

func (a *app) add(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("add", pflag.ContinueOnError)
	description := fs.StringP("description", "d", "", "description")
	due := fs.String("due", "", "due date, YYYY-MM-DD")
	priority := fs.StringP("priority", "p", "", "Low, Medium or High")
	if err := fs.Parse(args); err != nil {
		return err
	}

	created, err := a.ctrl.Submit(ctx, dashboard.FormValues{
		Title:       strings.Join(fs.Args(), " "),
		Description: *description,
		DueDate:     *due,
		Priority:    *priority,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s\n", created.ID)
	return nil
}

func (a *app) edit(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("edit", pflag.ContinueOnError)
	title := fs.StringP("title", "t", "", "new title")
	description := fs.StringP("description", "d", "", "new description")
	due := fs.String("due", "", "new due date, YYYY-MM-DD; empty clears it")
	priority := fs.StringP("priority", "p", "", "Low, Medium or High")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target, err := a.find(ctx, fs.Args())
	if err != nil {
		return err
	}

	form := dashboard.FormFor(target)
	if fs.Changed("title") {
		form.Title = *title
	}
	if fs.Changed("description") {
		form.Description = *description
	}
	if fs.Changed("due") {
		form.DueDate = *due
	}
	if fs.Changed("priority") {
		form.Priority = *priority
	}

	a.ctrl.StartEdit(target)
	updated, err := a.ctrl.Submit(ctx, form)
	if err != nil {
		return err
	}
	printTasks(a.out, []task.Task{*updated})
	return nil
}

func (a *app) toggle(ctx context.Context, args []string) error {
	target, err := a.find(ctx, args)
	if err != nil {
		return err
	}
	updated, err := a.ctrl.Toggle(ctx, target)
	if err != nil {
		return err
	}
	printTasks(a.out, []task.Task{*updated})
	return nil
}

func (a *app) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: taskctl rm <id>")
	}
	removed, err := a.ctrl.Remove(ctx, args[0])
	if err != nil {
		return err
	}
	if removed {
		fmt.Fprintln(a.out, "Task removed")
	}
	return nil
}

func (a *app) activity(ctx context.Context, args []string) error {
	fs := pflag.NewFlagSet("activity", pflag.ContinueOnError)
	follow := fs.BoolP("follow", "f", false, "keep streaming new entries until interrupted")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entries, err := a.client.Activity(ctx)
	if err != nil {
		return err
	}
	// Oldest first, like a log.
	for i := len(entries) - 1; i >= 0; i-- {
		printEntry(a.out, entries[i])
	}
	if !*follow {
		return nil
	}

	err = a.client.WatchActivity(a.interrupt, func(e activity.Entry) {
		printEntry(a.out, e)
	})
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

func printEntry(w io.Writer, e activity.Entry) {
	fmt.Fprintf(w, "%s  %-9s  %s\n", e.Timestamp.Local().Format(time.DateTime), e.Kind, e.Message)
}

// find loads the list and returns the task with the single id in args.
func (a *app) find(ctx context.Context, args []string) (task.Task, error) {
	if len(args) != 1 {
		return task.Task{}, errors.New("expected exactly one task id")
	}
	if err := a.ctrl.Load(ctx); err != nil {
		return task.Task{}, err
	}
	for _, t := range a.ctrl.Tasks() {
		if t.ID == args[0] {
			return t, nil
		}
	}
	return task.Task{}, fmt.Errorf("task %s not found", args[0])
}

func (a *app) confirm(_ context.Context, prompt string) bool {
	if a.assume {
		return true
	}
	fmt.Fprintf(a.out, "%s [y/N] ", prompt)
	line, _ := a.in.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

func (a *app) orPrompt(value, label string) string {
	if value != "" {
		return value
	}
	fmt.Fprintf(a.out, "%s: ", label)
	line, _ := a.in.ReadString('\n')
	return strings.TrimSpace(line)
}

func printTasks(w io.Writer, tasks []task.Task) {
	if len(tasks) == 0 {
		fmt.Fprintln(w, "No tasks.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDONE\tPRIORITY\tDUE\tTITLE")
	for _, t := range tasks {
		done := " "
		if t.Completed {
			done = "x"
		}
		due := "-"
		if t.DueDate != nil {
			due = t.DueDate.Format(task.DateLayout)
		}
		fmt.Fprintf(tw, "%s\t[%s]\t%s\t%s\t%s\n", t.ID, done, t.Priority, due, t.Title)
	}
	_ = tw.Flush()
}

func defaultSessionPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "task-tracker", "session.json")
	}
	return ".taskctl-session.json"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
