// trackfit-login signs in to a TrackFit server from the terminal with an
// e-mailed one-time code and saves the session to a local file.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	flag "github.com/spf13/pflag"
	"github.com/trackfit/trackfit/internal/authflow"
	"github.com/zerodha/logf"
)

var (
	lo = logf.New(logf.Opts{Writer: os.Stderr})

	// Version of the build injected at build time.
	buildString = "unknown"
)

func main() {
	f := flag.NewFlagSet("trackfit-login", flag.ContinueOnError)
	f.Usage = func() {
		fmt.Println(f.FlagUsages())
		os.Exit(0)
	}
	var (
		rootURL  = f.String("url", "http://localhost:9000", "Root URL of the TrackFit server")
		path     = f.String("storage", defaultStoragePath(), "Path to the session file")
		redirect = f.String("redirect", "/tracker", "Page to open after signing in")
		check    = f.Bool("check", false, "Only check for a saved session")
		timeout  = f.Duration("timeout", 10*time.Second, "HTTP request timeout")
		version  = f.Bool("version", false, "Show build version")
	)
	if err := f.Parse(os.Args[1:]); err != nil {
		os.Exit(2)
	}

	if *version {
		fmt.Println(buildString)
		os.Exit(0)
	}

	st := authflow.NewFileStorage(*path)

	// Gate check. The presence of a token is all that's checked.
	if *check {
		redir, ok, err := authflow.Gate(st, "", *redirect)
		if err != nil {
			lo.Fatal("error reading session", "path", *path, "error", err)
		}
		if !ok {
			fmt.Printf("not signed in. sign in at %s%s\n", strings.TrimRight(*rootURL, "/"), redir)
			os.Exit(1)
		}
		u, err := authflow.LoadUser(st)
		if err != nil && !errors.Is(err, authflow.ErrNoValue) {
			lo.Fatal("error reading session", "path", *path, "error", err)
		}
		fmt.Printf("signed in as %s <%s>\n", u.Name, u.Email)
		return
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	done := make(chan string, 1)
	fl := authflow.New(authflow.Opt{Redirect: *redirect},
		authflow.NewClient(*rootURL, *timeout), st,
		authflow.NavigatorFunc(func(target string) { done <- target }))
	defer fl.Close()

	if err := run(ctx, fl, bufio.NewReader(os.Stdin)); err != nil {
		if errors.Is(err, context.Canceled) {
			os.Exit(130)
		}
		lo.Fatal("sign in failed", "error", err)
	}

	select {
	case target := <-done:
		fmt.Printf("session saved to %s. open %s%s\n", *path, strings.TrimRight(*rootURL, "/"), target)
	case <-ctx.Done():
	}
}

// run prompts for the fields of each step until the flow is verified.
func run(ctx context.Context, fl *authflow.Flow, in *bufio.Reader) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		s := fl.Snapshot()
		switch s.State {
		case authflow.Verified:
			fmt.Println(s.Info)
			return nil

		case authflow.CollectingIdentity:
			name, err := prompt(in, "name", s.Name)
			if err != nil {
				return err
			}
			email, err := prompt(in, "e-mail", s.Email)
			if err != nil {
				return err
			}
			fl.SetName(name)
			fl.SetEmail(email)
			report(fl.Send(ctx), fl)

		case authflow.CollectingCode:
			v, err := prompt(in, "code (r to resend, b to change e-mail)", "")
			if err != nil {
				return err
			}

			switch strings.ToLower(v) {
			case "r":
				if err := fl.Resend(ctx); errors.Is(err, authflow.ErrResendDisabled) {
					fmt.Printf("resend available in %ds\n", fl.Snapshot().Cooldown)
				} else {
					report(err, fl)
				}
			case "b":
				fl.Back()
			default:
				fl.SetCode(v)
				report(fl.Verify(ctx), fl)
			}
		}
	}
}

// prompt reads a line. An empty line keeps def.
func prompt(in *bufio.Reader, label, def string) (string, error) {
	if def != "" {
		fmt.Printf("%s [%s]: ", label, def)
	} else {
		fmt.Printf("%s: ", label)
	}

	line, err := in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	if line = strings.TrimSpace(line); line == "" {
		return def, nil
	}
	return line, nil
}

func report(err error, fl *authflow.Flow) {
	s := fl.Snapshot()
	if err != nil {
		if s.Error == "" {
			s.Error = err.Error()
		}
		fmt.Println("error:", s.Error)
		return
	}
	if s.Info != "" {
		fmt.Println(s.Info)
	}
}

func defaultStoragePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "trackfit-session.json"
	}
	return filepath.Join(dir, "trackfit", "session.json")
}
