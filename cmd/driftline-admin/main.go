// ABOUTME: Operator CLI for the Driftline admin console
// ABOUTME: Drives the trust-boundary services from the terminal

package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"

	"github.com/driftline/driftline-console/internal/console"
)

const banner = `
     _      _  __ _   _ _
  __| |_ __(_)/ _| |_| (_)_ __   ___
 / _' | '__| | |_| __| | | '_ \ / _ \
| (_| | |  | |  _| |_| | | | | |  __/
 \__,_|_|  |_|_|  \__|_|_|_| |_|\___|
`

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg, err := resolveConfig()
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}

	app, err := console.New(cfg)
	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
	defer app.Shutdown()

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "me":
		err = cmdMe(app)
	case "login":
		err = cmdLogin(app, args)
	case "logout":
		err = cmdLogout(app)
	case "stepup":
		err = cmdStepUp(app)
	case "sessions":
		err = cmdSessions(app, args)
	case "announcements":
		err = cmdAnnouncements(app, args)
	case "approvals":
		err = cmdApprovals(app, args)
	case "links":
		err = cmdLinks(app, args)
	case "journal":
		err = cmdJournal(app, args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cyan.Print(banner)
	fmt.Println()
	fmt.Println("Usage: driftline-admin <command> [args]")
	fmt.Println()
	yellow.Println("Commands:")
	fmt.Println("  me                            Show your identity and permission snapshot")
	fmt.Println("  login [username]              Log in and bootstrap the session")
	fmt.Println("  logout                        Log out (local state clears either way)")
	fmt.Println("  stepup                        Elevate privileges for high-risk actions")
	fmt.Println("  sessions list                 List active sessions")
	fmt.Println("  sessions terminate <id>       Terminate one session (high-risk)")
	fmt.Println("  sessions terminate-others     Terminate all other sessions (high-risk)")
	fmt.Println("  announcements list [status]   List announcements")
	fmt.Println("  announcements show <id>       Show one announcement (rendered body)")
	fmt.Println("  announcements publish <id>... Bulk publish with preview + confirm")
	fmt.Println("  announcements archive <id>... Bulk archive with preview + confirm")
	fmt.Println("  approvals list                List the moderation queue")
	fmt.Println("  approvals approve <id>        Approve an item (high-risk)")
	fmt.Println("  approvals reject <id> <why>   Reject an item (high-risk)")
	fmt.Println("  links list|broken             List tracked outbound links")
	fmt.Println("  links replace <from> <to>     Global link replace with preview + confirm")
	fmt.Println("  journal [n]                   Show the last n journaled mutations")
	fmt.Println()
	yellow.Println("Environment:")
	fmt.Println("  DRIFTLINE_API        Primary API origin (overrides profile)")
	fmt.Println("  DRIFTLINE_CONFIG     Path to a YAML config file")
	fmt.Println("  DRIFTLINE_PROFILE    Profile name in credentials.toml (default: default)")
	fmt.Println()
	yellow.Println("Examples:")
	fmt.Println("  driftline-admin login ops")
	fmt.Println("  driftline-admin stepup")
	fmt.Println("  driftline-admin announcements publish ann_01 ann_02")
	fmt.Println()
}
