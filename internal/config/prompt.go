package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	"github.com/robmartinson/pgmigrate/internal/database"
)

// Prompter asks for connection settings on a terminal, offering the current
// configuration values as defaults.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer

	// readPassword reads a line without echo. Nil means read a plain line.
	readPassword func() (string, error)
}

// NewPrompter reads answers from in and writes questions to out. When in is
// a terminal the password is read without echo.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	p := &Prompter{in: bufio.NewReader(in), out: out}

	if f, ok := in.(*os.File); ok && isTerminal(f) {
		p.readPassword = func() (string, error) {
			b, err := term.ReadPassword(int(f.Fd()))
			fmt.Fprintln(out)
			return string(b), err
		}
	}
	return p
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Fill prompts for database, user, password, host and port in that order.
// An empty answer keeps the value already in cfg.
func (p *Prompter) Fill(cfg *database.Config) error {
	var err error

	if cfg.Database, err = p.ask("dbname", cfg.Database); err != nil {
		return err
	}
	if cfg.User, err = p.ask("user", cfg.User); err != nil {
		return err
	}
	if cfg.Password, err = p.askPassword(cfg.Password); err != nil {
		return err
	}
	if cfg.Host, err = p.ask("host", cfg.Host); err != nil {
		return err
	}

	port, err := p.ask("port", strconv.Itoa(cfg.Port))
	if err != nil {
		return err
	}
	if cfg.Port, err = strconv.Atoi(port); err != nil || cfg.Port <= 0 || cfg.Port > 65535 {
		return fmt.Errorf("invalid port %q", port)
	}

	return nil
}

func (p *Prompter) ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s (default: %s): ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}

	answer, err := p.readLine()
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

func (p *Prompter) askPassword(def string) (string, error) {
	if def != "" {
		fmt.Fprint(p.out, "password (default: keep configured): ")
	} else {
		fmt.Fprint(p.out, "password: ")
	}

	var (
		answer string
		err    error
	)
	if p.readPassword != nil {
		answer, err = p.readPassword()
	} else {
		answer, err = p.readLine()
	}
	if err != nil {
		return "", err
	}
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// readLine returns the next line without its terminator. EOF after a partial
// line is not an error, EOF with nothing read is treated as an empty answer.
func (p *Prompter) readLine() (string, error) {
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("read answer: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// shouldPrompt decides whether connection settings are asked for: always
// with --interactive, otherwise only on a terminal when nothing identifies
// the database yet.
func shouldPrompt(interactive, configured bool, in io.Reader) bool {
	if interactive {
		return true
	}
	if configured {
		return false
	}
	f, ok := in.(*os.File)
	return ok && isTerminal(f)
}
