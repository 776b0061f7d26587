package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/atinyakov/SchoolBus/internal/client/api"
	"github.com/atinyakov/SchoolBus/internal/client/events"
	"github.com/atinyakov/SchoolBus/internal/client/session"
	"github.com/atinyakov/SchoolBus/internal/client/tracking"
	"github.com/atinyakov/SchoolBus/internal/models"
)

const (
	helpText = `Available commands:
  help                         show this list
  login | register | logout    manage the session
  me                           show the signed-in user
  children                     list your children
  buses | routes | locations   fleet overview
  bookings [status]            list your bookings
  book                         reserve a seat
  cancel <id>                  cancel a booking
  attendance                   list attendance records
  mark <studentId> <status>    record attendance (present/absent/late)
  notifications                show your inbox
  track [seconds]              follow live bus positions
  exit                         quit`

	defaultTrackFor = 10 * time.Second
)

// shell is the interactive front end over the API client and session.
type shell struct {
	api       *api.Client
	sess      *session.Manager
	board     *tracking.Board
	socketURL string
	wsClient  *http.Client
	in        *prompter
	out       io.Writer
	log       *zap.Logger
	now       func() time.Time

	signedIn bool
}

func (s *shell) notice(msg string) {
	fmt.Fprintf(s.out, "! %s\n", msg)
}

// watch wires session and dashboard events to the terminal. It returns a
// function that removes the subscriptions.
func (s *shell) watch(ctx context.Context) func() {
	bus := s.sess.Events()
	unsubs := []func(){
		s.sess.Subscribe(func(u models.User, st session.State) {
			signedIn := st == session.StateAuthenticated
			if signedIn && !s.signedIn {
				fmt.Fprintf(s.out, "Signed in as %s (%s)\n", u.Name, u.Role)
			}
			s.signedIn = signedIn
		}),
		bus.Subscribe(events.TopicDashboardStale, func(any) {
			s.reloadDashboard(ctx)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}

// run reads commands until exit or end of input.
func (s *shell) run(ctx context.Context) {
	for {
		fmt.Fprint(s.out, "schoolbus> ")
		line, ok := s.in.line()
		if !ok {
			return
		}
		args := strings.Fields(line)
		if len(args) == 0 {
			continue
		}
		if args[0] == "exit" || args[0] == "quit" {
			fmt.Fprintln(s.out, "Bye")
			return
		}
		s.dispatch(ctx, args)
	}
}

func (s *shell) dispatch(ctx context.Context, args []string) {
	cmd := args[0]
	switch cmd {
	case "help":
		fmt.Fprintln(s.out, helpText)
		return
	case "login":
		email, password := s.in.credentials()
		_ = s.sess.Login(ctx, email, password)
		return
	case "register":
		_ = s.sess.Register(ctx, s.in.registerForm())
		return
	}

	if s.sess.State() != session.StateAuthenticated {
		s.notice("Please log in first")
		return
	}

	var err error
	switch cmd {
	case "logout":
		s.sess.Logout(ctx)
		fmt.Fprintln(s.out, "Logged out")
	case "me":
		err = s.me(ctx)
	case "children":
		err = s.children(ctx)
	case "buses":
		err = s.buses(ctx)
	case "routes":
		err = s.routes(ctx)
	case "locations":
		err = s.locations(ctx)
	case "bookings":
		status := ""
		if len(args) > 1 {
			status = args[1]
		}
		err = s.bookings(ctx, status)
	case "book":
		err = s.book(ctx)
	case "cancel":
		if len(args) < 2 {
			fmt.Fprintln(s.out, "Usage: cancel <id>")
			return
		}
		if err = s.api.CancelBooking(ctx, args[1]); err == nil {
			fmt.Fprintln(s.out, "Booking cancelled")
		}
	case "attendance":
		err = s.attendance(ctx)
	case "mark":
		if len(args) < 3 {
			fmt.Fprintln(s.out, "Usage: mark <studentId> <status>")
			return
		}
		err = s.mark(ctx, args[1], args[2])
	case "notifications":
		err = s.notifications(ctx)
	case "track":
		d := defaultTrackFor
		if len(args) > 1 {
			secs, convErr := strconv.Atoi(args[1])
			if convErr != nil || secs <= 0 {
				fmt.Fprintln(s.out, "Usage: track [seconds]")
				return
			}
			d = time.Duration(secs) * time.Second
		}
		err = s.track(ctx, d)
	default:
		fmt.Fprintln(s.out, "Unknown command. Type 'help' for a list of commands.")
		return
	}
	s.report(err)
}

// report prints a failed command. Expired sessions were already announced.
func (s *shell) report(err error) {
	if err == nil || session.IsExpired(err) {
		return
	}
	s.log.Debug("command failed", zap.Error(err))
	s.notice(err.Error())
}

func (s *shell) table(header string, rows func(w io.Writer)) {
	tw := tabwriter.NewWriter(s.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, header)
	rows(tw)
	_ = tw.Flush()
}

func (s *shell) me(ctx context.Context) error {
	u, err := s.api.Me(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%s <%s>\nrole: %s\nid: %s\n", u.Name, u.Email, u.Role, u.ID)
	return nil
}

func (s *shell) children(ctx context.Context) error {
	children, err := s.api.MyChildren(ctx)
	if err != nil {
		return err
	}
	if len(children) == 0 {
		fmt.Fprintln(s.out, "No children linked to this account")
		return nil
	}
	s.table("ID\tNAME\tGRADE\tSCHOOL\tBUS", func(w io.Writer) {
		for _, c := range children {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", c.ID, c.Name, c.Grade, c.School, c.BusID)
		}
	})
	s.sess.UpdateUser(models.UserPatch{Children: children})
	return nil
}

func (s *shell) buses(ctx context.Context) error {
	buses, err := s.api.Buses(ctx)
	if err != nil {
		return err
	}
	s.table("ID\tNUMBER\tCAPACITY\tSTATUS", func(w io.Writer) {
		for _, b := range buses {
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", b.ID, b.BusNumber, b.Capacity, b.Status)
		}
	})
	return nil
}

func (s *shell) routes(ctx context.Context) error {
	routes, err := s.api.Routes(ctx)
	if err != nil {
		return err
	}
	s.table("ID\tNAME\tFROM\tTO\tSTOPS", func(w io.Writer) {
		for _, r := range routes {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n", r.ID, r.Name, r.StartPoint.Name, r.EndPoint.Name, len(r.Stops))
		}
	})
	return nil
}

func (s *shell) locations(ctx context.Context) error {
	locs, err := s.api.ActiveBusLocations(ctx)
	if err != nil {
		return err
	}
	s.table("BUS\tLAT\tLONG\tSPEED\tSTATUS", func(w io.Writer) {
		for _, l := range locs {
			fmt.Fprintf(w, "%s\t%.5f\t%.5f\t%.0f\t%s\n",
				l.Bus.ID, l.CurrentLocation.Latitude, l.CurrentLocation.Longitude, l.Speed, l.Status)
		}
	})
	return nil
}

func (s *shell) bookings(ctx context.Context, status string) error {
	bookings, err := s.api.ParentBookings(ctx, status, "")
	if err != nil {
		return err
	}
	if len(bookings) == 0 {
		fmt.Fprintln(s.out, "No bookings")
		return nil
	}
	s.table("ID\tDATE\tSTUDENT\tBUS\tSTATUS", func(w io.Writer) {
		for _, b := range bookings {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				b.ID, b.Date, firstNonEmpty(b.Student.Name, b.Student.ID), firstNonEmpty(b.Bus.BusNumber, b.Bus.ID), b.Status)
		}
	})
	return nil
}

func (s *shell) book(ctx context.Context) error {
	b, err := s.api.CreateBooking(ctx, s.in.bookingForm(s.now()))
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "Booking %s is %s\n", b.ID, b.Status)
	return nil
}

func (s *shell) attendance(ctx context.Context) error {
	records, err := s.api.ParentAttendances(ctx)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(s.out, "No attendance records")
		return nil
	}
	s.table("DATE\tSTUDENT\tBUS\tSTATUS", func(w io.Writer) {
		for _, a := range records {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", a.Date, a.UserID, a.BusID, a.Status)
		}
	})
	return nil
}

func (s *shell) mark(ctx context.Context, studentID, status string) error {
	switch status {
	case models.AttendancePresent, models.AttendanceAbsent, models.AttendanceLate:
	default:
		return fmt.Errorf("status must be one of: %s, %s, %s",
			models.AttendancePresent, models.AttendanceAbsent, models.AttendanceLate)
	}
	_, err := s.api.CreateAttendance(ctx, models.AttendanceRequest{
		StudentID: studentID,
		Date:      s.now().Format(time.DateOnly),
		Status:    status,
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(s.out, "Attendance recorded")
	s.sess.Events().Publish(events.TopicDashboardStale, studentID)
	return nil
}

func (s *shell) reloadDashboard(ctx context.Context) {
	children, err := s.api.MyChildren(ctx)
	if err != nil {
		s.report(err)
		return
	}
	bookings, err := s.api.ParentBookings(ctx, "", "")
	if err != nil {
		s.report(err)
		return
	}
	fmt.Fprintf(s.out, "Dashboard refreshed: %d children, %d bookings\n", len(children), len(bookings))
}

func (s *shell) notifications(ctx context.Context) error {
	u, ok := s.sess.User()
	if !ok {
		return errors.New("no signed-in user")
	}
	items, err := s.api.Notifications(ctx, u.ID)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		fmt.Fprintln(s.out, "No notifications")
		return nil
	}
	for _, n := range items {
		mark := " "
		if !n.Read {
			mark = "*"
		}
		fmt.Fprintf(s.out, "%s [%s] %s: %s\n", mark, n.Type, n.Title, n.Message)
	}
	return nil
}

// track follows the position feed for d and prints each update.
func (s *shell) track(ctx context.Context, d time.Duration) error {
	if s.socketURL == "" {
		return errors.New("live tracking is disabled: set SOCKET_URL")
	}
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	feed, err := tracking.Dial(ctx, s.socketURL, tracking.DialOptions{HTTPClient: s.wsClient, Logger: s.log})
	if err != nil {
		return err
	}
	defer feed.Close()

	fmt.Fprintf(s.out, "Tracking for %s...\n", d)
	err = feed.Run(ctx, func(p tracking.Position) {
		s.board.Apply(p)
		fmt.Fprintf(s.out, "%s  %.5f,%.5f  %s\n", p.BusID, p.Latitude, p.Longitude, p.Status)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(s.out, "%d buses seen\n", s.board.Len())
	return nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
