package main

import (
	"bufio"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/atinyakov/SchoolBus/internal/client/api"
	"github.com/atinyakov/SchoolBus/internal/models"
)

// prompter reads answers line by line from the shell's input.
type prompter struct {
	sc  *bufio.Scanner
	out io.Writer
}

func newPrompter(in io.Reader, out io.Writer) *prompter {
	return &prompter{sc: bufio.NewScanner(in), out: out}
}

// line reads the next input line. ok is false at end of input.
func (p *prompter) line() (string, bool) {
	if !p.sc.Scan() {
		return "", false
	}
	return strings.TrimSpace(p.sc.Text()), true
}

func (p *prompter) ask(label string) string {
	fmt.Fprintf(p.out, "%s: ", label)
	s, _ := p.line()
	return s
}

func (p *prompter) askDefault(label, def string) string {
	fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	s, _ := p.line()
	if s == "" {
		return def
	}
	return s
}

func (p *prompter) credentials() (email, password string) {
	return p.ask("Email"), p.ask("Password")
}

// registerForm collects a registration. An image path makes the request a
// multipart upload.
func (p *prompter) registerForm() api.RegisterInput {
	in := api.RegisterInput{
		Name:     p.ask("Name"),
		Email:    p.ask("Email"),
		Password: p.ask("Password"),
		Role:     models.Role(p.askDefault("Role (parent/driver/admin/manager)", string(models.RoleParent))),
		Phone:    p.ask("Phone (optional)"),
	}
	if path := p.ask("Profile image path (optional)"); path != "" {
		in.Image = &api.ImageFile{
			URI:  path,
			Name: filepath.Base(path),
			Type: mime.TypeByExtension(filepath.Ext(path)),
		}
	}
	return in
}

func (p *prompter) bookingForm(today time.Time) models.BookingRequest {
	return models.BookingRequest{
		StudentID: p.ask("Student id"),
		BusID:     p.ask("Bus id"),
		RouteID:   p.ask("Route id"),
		Date:      p.askDefault("Date", today.Format(time.DateOnly)),
		Notes:     p.ask("Notes (optional)"),
	}
}
