// Command pizzactl is an interactive terminal client: pick an image, submit
// it, and find out whether it is pizza.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chzyer/readline"
	"go.uber.org/zap"

	"github.com/example/is-it-pizza/internal/apiclient"
	"github.com/example/is-it-pizza/internal/capture"
	"github.com/example/is-it-pizza/internal/logging"
	"github.com/example/is-it-pizza/internal/session"
)

const confetti = `
   *  .  🍕  .  *  .  🎉  .  *
 .  🎊  *  .  🍕  .  *  🎊  .
   *  .  🎉  .  *  .  🍕  .  *
`

func main() {
	server := flag.String("server", "http://localhost:8080", "base URL of the pizza API")
	timeout := flag.Duration("timeout", 0, "per-request timeout, 0 waits forever")
	logLevel := flag.String("log-level", "error", "log level")
	flag.Parse()

	logger, err := logging.NewLogger(*logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "pizza> ",
		AutoComplete:    completer(),
		InterruptPrompt: "^C",
		EOFPrompt:       "quit",
	})
	if err != nil {
		logger.Fatal("failed to open terminal", zap.Error(err))
	}
	defer rl.Close()

	out := rl.Stdout()
	sess := session.New(
		apiclient.New(*server, *timeout),
		session.WithLogger(logger),
		session.WithCelebration(func() { fmt.Fprint(out, confetti) }),
	)
	sess.OnChange(func(st session.State) { render(out, st) })

	fmt.Fprintln(out, "Is it pizza? Type 'help' for commands.")
	render(out, sess.State())
	for {
		line, err := rl.Readline()
		if errors.Is(err, readline.ErrInterrupt) {
			continue
		}
		if errors.Is(err, io.EOF) {
			return
		}
		if quit := run(context.Background(), out, sess, strings.TrimSpace(line)); quit {
			return
		}
	}
}

// run executes one command line and reports whether the user asked to quit.
func run(ctx context.Context, out io.Writer, sess *session.Session, line string) bool {
	cmd, arg, _ := strings.Cut(line, " ")
	var err error
	switch strings.ToLower(cmd) {
	case "":
	case "select", "take":
		var selectErr error
		err = capture.Acquire(arg, func(img *capture.Image) { selectErr = sess.Select(img) })
		if err == nil {
			err = selectErr
		}
	case "submit":
		// The failure is already shown by the ImageSelected render.
		_ = sess.Submit(ctx)
	case "retake":
		err = sess.Retake()
	case "again", "try-again":
		err = sess.TryAgain()
	case "show":
		render(out, sess.State())
	case "help":
		fmt.Fprintln(out, "commands: select <path> | submit | retake | again | show | quit")
	case "quit", "exit":
		return true
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		fmt.Fprintf(out, "! %v\n", err)
	}
	return false
}

func render(out io.Writer, st session.State) {
	switch s := st.(type) {
	case session.Idle:
		fmt.Fprintln(out, "📷 Take a picture: select <path>")
	case session.ImageSelected:
		fmt.Fprintf(out, "🖼  %s (%s, %d bytes) ready. submit | retake\n", s.Image.Name, s.Image.ContentType, len(s.Image.Data))
		if s.Err != "" {
			fmt.Fprintf(out, "⚠️  %s (submit to retry)\n", s.Err)
		}
	case session.Uploading:
		fmt.Fprintln(out, "⏫ Uploading...")
	case session.Analyzing:
		fmt.Fprintf(out, "🔍 Analyzing %s ...\n", s.Upload.URL)
	case session.Result:
		if s.Verdict.IsPizza {
			fmt.Fprintln(out, "🍕 YES! That's pizza!")
		} else {
			fmt.Fprintln(out, "🚫 Nope, that's not pizza.")
		}
		fmt.Fprintf(out, "   confidence: %s  image: %s\n   again | quit\n", s.Verdict.Confidence, s.Upload.URL)
	}
}

func completer() *readline.PrefixCompleter {
	return readline.NewPrefixCompleter(
		readline.PcItem("select", readline.PcItemDynamic(listImages)),
		readline.PcItem("submit"),
		readline.PcItem("retake"),
		readline.PcItem("again"),
		readline.PcItem("show"),
		readline.PcItem("help"),
		readline.PcItem("quit"),
	)
}

// listImages offers files in the current directory with an image extension.
func listImages(string) []string {
	var names []string
	for _, pattern := range []string{"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp", "*.heic"} {
		matches, _ := filepath.Glob(pattern)
		names = append(names, matches...)
	}
	return names
}
