// ABOUTME: Subcommand implementations for driftline-admin
// ABOUTME: Bulk commands run the preview -> confirm -> execute workflow interactively

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/driftline/driftline-console/internal/api"
	"github.com/driftline/driftline-console/internal/console"
	"github.com/driftline/driftline-console/internal/preview"
	"github.com/driftline/driftline-console/internal/resources"
)

// opTimeout bounds each CLI operation.
const opTimeout = 60 * time.Second

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

// prompt reads one line from stdin after printing the label.
func prompt(label string) (string, error) {
	fmt.Print(label)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// bootstrap establishes the session; most commands need it first.
func bootstrap(app *console.Console) (context.Context, context.CancelFunc, error) {
	ctx, cancel := opContext()
	if err := app.Session.Bootstrap(ctx); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("bootstrapping session (are you logged in?): %w", err)
	}
	return ctx, cancel, nil
}

// cmdMe shows the identity and permission snapshot.
func cmdMe(app *console.Console) error {
	_, cancel, err := bootstrap(app)
	if err != nil {
		return err
	}
	defer cancel()

	ident := app.Session.Identity()
	perms := app.Session.Permissions()

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)

	fmt.Println()
	cyan.Println("  Identity")
	cyan.Println("  --------")
	fmt.Printf("  ID:            %s\n", ident.ID)
	fmt.Printf("  Username:      %s\n", ident.Username)
	fmt.Printf("  Display Name:  %s\n", ident.DisplayName)
	green.Printf("  Active Role:   %s\n", perms.ActiveRole)

	if granted := perms.RolePermissions[perms.ActiveRole]; len(granted) > 0 {
		fmt.Printf("  Permissions:   %s\n", strings.Join(granted, ", "))
	}
	if len(perms.HighRiskActions) > 0 {
		fmt.Printf("  High-risk:     %s\n", strings.Join(perms.HighRiskActions, ", "))
	}
	if app.Grants.Valid() {
		green.Println("  Step-up:       active")
	} else {
		fmt.Println("  Step-up:       none")
	}
	fmt.Println()
	return nil
}

// cmdLogin authenticates and re-bootstraps.
func cmdLogin(app *console.Console, args []string) error {
	var username string
	if len(args) > 0 {
		username = args[0]
	} else {
		u, err := prompt("Username: ")
		if err != nil {
			return err
		}
		username = u
	}
	password, err := prompt("Password: ")
	if err != nil {
		return err
	}

	ctx, cancel := opContext()
	defer cancel()
	if err := app.Session.Login(ctx, username, password); err != nil {
		return fmt.Errorf("login: %w", err)
	}
	color.Green("Logged in as %s\n", username)
	return nil
}

// cmdLogout revokes the remote session. Local state clears even on failure.
func cmdLogout(app *console.Console) error {
	ctx, cancel := opContext()
	defer cancel()
	if err := app.Session.Logout(ctx); err != nil {
		return fmt.Errorf("remote logout failed (local session cleared): %w", err)
	}
	color.Green("Logged out\n")
	return nil
}

// cmdStepUp elevates privileges for high-risk actions.
func cmdStepUp(app *console.Console) error {
	_, cancel, err := bootstrap(app)
	if err != nil {
		return err
	}
	defer cancel()

	password, err := prompt("Password: ")
	if err != nil {
		return err
	}
	code, err := prompt("Second-factor code (blank if none): ")
	if err != nil {
		return err
	}

	ctx, cancel2 := opContext()
	defer cancel2()
	if err := app.Grants.Issue(ctx, password, code); err != nil {
		return fmt.Errorf("step-up: %w", err)
	}
	color.Green("Step-up grant issued\n")
	return nil
}

// cmdSessions manages active sessions.
func cmdSessions(app *console.Console, args []string) error {
	ctx, cancel, err := bootstrap(app)
	if err != nil {
		return err
	}
	defer cancel()

	sub := "list"
	if len(args) > 0 {
		sub = args[0]
	}
	switch sub {
	case "list":
		sessions, err := app.Resources.Sessions.List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tIP\tUSER AGENT\tLAST SEEN\tCURRENT")
		for _, s := range sessions {
			current := ""
			if s.Current {
				current = "*"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", s.ID, s.IP, s.UserAgent, s.LastSeen.Format(time.RFC3339), current)
		}
		return w.Flush()
	case "terminate":
		if len(args) < 2 {
			return fmt.Errorf("usage: sessions terminate <id>")
		}
		if err := app.Resources.Sessions.Terminate(ctx, args[1]); err != nil {
			return err
		}
		color.Green("Session %s terminated\n", args[1])
		return nil
	case "terminate-others":
		if err := app.Resources.Sessions.TerminateOthers(ctx); err != nil {
			return err
		}
		color.Green("All other sessions terminated\n")
		return nil
	default:
		return fmt.Errorf("unknown sessions subcommand: %s", sub)
	}
}

// cmdAnnouncements manages announcements, including bulk publish/archive.
func cmdAnnouncements(app *console.Console, args []string) error {
	ctx, cancel, err := bootstrap(app)
	if err != nil {
		return err
	}
	defer cancel()

	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}
	switch sub {
	case "list":
		var status string
		if len(args) > 0 {
			status = args[0]
		}
		items, err := app.Resources.Announcements.List(ctx, listFilter(status))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tTITLE\tUPDATED")
		for _, a := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.Status, a.Title, a.UpdatedAt.Format(time.RFC3339))
		}
		return w.Flush()
	case "show":
		if len(args) < 1 {
			return fmt.Errorf("usage: announcements show <id>")
		}
		item, err := app.Resources.Announcements.Get(ctx, args[0])
		if err != nil {
			return err
		}
		html, err := app.Resources.Announcements.RenderBody(item)
		if err != nil {
			return err
		}
		color.Cyan("%s  [%s]\n\n", item.Title, item.Status)
		fmt.Println(html)
		return nil
	case "publish", "archive":
		if len(args) == 0 {
			return fmt.Errorf("usage: announcements %s <id>...", sub)
		}
		coord := app.Resources.Announcements.BulkCoordinator(sub)
		coord.SetSelection(args)
		return runBulk(ctx, coord, sub)
	default:
		return fmt.Errorf("unknown announcements subcommand: %s", sub)
	}
}

// cmdApprovals manages the moderation queue.
func cmdApprovals(app *console.Console, args []string) error {
	ctx, cancel, err := bootstrap(app)
	if err != nil {
		return err
	}
	defer cancel()

	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}
	switch sub {
	case "list":
		items, err := app.Resources.Approvals.List(ctx, listFilter("pending"))
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tITEM\tSUBMITTED BY\tSUBMITTED AT")
		for _, a := range items {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.ID, a.ItemTitle, a.SubmittedBy, a.SubmittedAt.Format(time.RFC3339))
		}
		return w.Flush()
	case "approve":
		if len(args) < 1 {
			return fmt.Errorf("usage: approvals approve <id>")
		}
		if err := app.Resources.Approvals.Approve(ctx, args[0]); err != nil {
			return err
		}
		color.Green("Approved %s\n", args[0])
		return nil
	case "reject":
		if len(args) < 2 {
			return fmt.Errorf("usage: approvals reject <id> <reason>")
		}
		if err := app.Resources.Approvals.Reject(ctx, args[0], strings.Join(args[1:], " ")); err != nil {
			return err
		}
		color.Green("Rejected %s\n", args[0])
		return nil
	default:
		return fmt.Errorf("unknown approvals subcommand: %s", sub)
	}
}

// cmdLinks manages outbound links and global replacement.
func cmdLinks(app *console.Console, args []string) error {
	ctx, cancel, err := bootstrap(app)
	if err != nil {
		return err
	}
	defer cancel()

	sub := "list"
	if len(args) > 0 {
		sub = args[0]
		args = args[1:]
	}
	switch sub {
	case "list", "broken":
		var items []api.Link
		if sub == "broken" {
			items, err = app.Resources.Links.Broken(ctx)
		} else {
			items, err = app.Resources.Links.List(ctx, listFilter(""))
		}
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tURL\tITEMS\tBROKEN")
		for _, l := range items {
			fmt.Fprintf(w, "%s\t%s\t%d\t%v\n", l.ID, l.URL, l.ItemCount, l.Broken)
		}
		return w.Flush()
	case "replace":
		if len(args) < 2 {
			return fmt.Errorf("usage: links replace <from-url> <to-url>")
		}
		links, err := app.Resources.Links.List(ctx, listFilter(""))
		if err != nil {
			return err
		}
		var candidates []string
		for _, l := range links {
			if l.URL == args[0] {
				candidates = append(candidates, l.ID)
			}
		}
		if len(candidates) == 0 {
			return fmt.Errorf("no tracked links point at %s", args[0])
		}
		coord := app.Resources.Links.ReplaceCoordinator(api.LinkReplaceParams{FromURL: args[0], ToURL: args[1]})
		coord.SetSelection(candidates)
		return runBulk(ctx, coord, "replace")
	default:
		return fmt.Errorf("unknown links subcommand: %s", sub)
	}
}

// cmdJournal lists recent journaled mutations.
func cmdJournal(app *console.Console, args []string) error {
	store := app.Journal()
	if store == nil {
		return fmt.Errorf("mutation journal is disabled (no journal path configured)")
	}
	limit := 20
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("invalid count %q", args[0])
		}
		limit = n
	}

	ctx, cancel := opContext()
	defer cancel()
	entries, err := store.List(ctx, limit)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tMETHOD\tPATH\tORIGIN\tATTEMPTS\tSTATUS\tOK")
	for _, e := range entries {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%v\n",
			e.CreatedAt.Format(time.RFC3339), e.Method, e.Path, e.Origin, e.Attempts, e.Status, e.OK)
	}
	return w.Flush()
}

// runBulk drives the preview -> confirm -> execute workflow at the terminal.
func runBulk(ctx context.Context, coord *preview.Coordinator, action string) error {
	result, err := coord.PreviewImpact(ctx)
	if err != nil {
		return fmt.Errorf("previewing %s: %w", action, err)
	}

	yellow := color.New(color.FgYellow)
	fmt.Printf("\nEligible: %d\n", len(result.EligibleIDs))
	for _, b := range result.Blocked {
		yellow.Printf("Blocked:  %s (%s)\n", b.ID, b.Reason)
	}
	for _, warning := range result.Warnings {
		yellow.Printf("Warning:  %s\n", warning)
	}
	if len(result.EligibleIDs) == 0 {
		return fmt.Errorf("no eligible candidates for %s", action)
	}

	if err := coord.RequestExecute(); err != nil {
		return err
	}
	answer, err := prompt(fmt.Sprintf("\nApply %s to %d item(s)? Type yes to continue: ", action, len(result.EligibleIDs)))
	if err != nil {
		return err
	}
	if answer != "yes" {
		coord.Decline()
		fmt.Println("Aborted; nothing was changed.")
		return nil
	}

	outcome, err := coord.Execute(ctx)
	if err != nil {
		return fmt.Errorf("executing %s: %w", action, err)
	}
	color.Green("Applied to %d item(s)\n", outcome.Applied)
	return nil
}

func listFilter(status string) resources.ListOptions {
	return resources.ListOptions{Status: status}
}
