package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"shiftbook/internal/booking"
	"shiftbook/internal/calendar"
	"shiftbook/internal/domain"
	"shiftbook/internal/export"
	"shiftbook/internal/models"
	"shiftbook/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := s.pinger.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type signInRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	Token     string `json:"token"`
	UserID    string `json:"user_id"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"expires_at"`
}

func (s *HTTPServer) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var req signInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	sess, err := s.sessions.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Token:     sess.Token,
		UserID:    sess.UserID,
		Email:     sess.Email,
		Role:      sess.Role,
		ExpiresAt: sess.ExpiresAt,
	})
}

func (s *HTTPServer) handleSignOut(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		s.writeServiceError(w, domain.ErrNotAuthenticated)
		return
	}
	if err := s.sessions.SignOut(r.Context(), token); err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.boards.Drop(token)
	w.WriteHeader(http.StatusNoContent)
}

type calendarCell struct {
	Day          int             `json:"day,omitempty"`
	Date         string          `json:"date,omitempty"`
	Weekday      time.Weekday    `json:"weekday"`
	Label        string          `json:"label,omitempty"`
	Closed       bool            `json:"closed,omitempty"`
	ClosedReason string          `json:"closed_reason,omitempty"`
	Slots        []*booking.Slot `json:"slots,omitempty"`
}

type calendarResponse struct {
	Year       int                   `json:"year"`
	Month      time.Month            `json:"month"`
	Today      string                `json:"today"`
	WeekLabels []string              `json:"week_labels"`
	Rows       [][]calendarCell      `json:"rows"`
	Counts     map[booking.State]int `json:"counts"`
}

func (s *HTTPServer) board(r *http.Request) *service.Board {
	// the load closure reads the session of each call, not of the first one
	return s.boards.For(tokenFrom(r.Context()), func(ctx context.Context, year int, month time.Month) (*booking.ViewModel, error) {
		return s.calendar.View(ctx, sessionFrom(ctx), year, month)
	})
}

func (s *HTTPServer) handleCalendar(w http.ResponseWriter, r *http.Request, _ *models.Session) {
	year, month, err := s.monthParams(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	q := r.URL.Query()
	columns := calendar.FullWeek
	if raw := q.Get("columns"); raw != "" {
		columns, err = strconv.Atoi(raw)
		if err != nil || columns < 1 || columns > calendar.FullWeek {
			writeError(w, http.StatusBadRequest, "columns must be between 1 and 7")
			return
		}
	}
	hidePast, _ := strconv.ParseBool(q.Get("hide_past"))

	vm, err := s.board(r).Show(r.Context(), year, month)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	var skip func(day int) bool
	if hidePast {
		skip = func(day int) bool {
			return vm.IsPastDate(calendar.DateString(year, month, day))
		}
	}

	layout := calendar.Layout(year, month, columns, skip)
	rows := make([][]calendarCell, 0, len(layout))
	for _, line := range layout {
		out := make([]calendarCell, 0, len(line))
		for _, c := range line {
			cell := calendarCell{Day: c.Day, Date: c.Date, Weekday: c.Weekday, Label: c.Label}
			if d, ok := vm.Day(c.Date); ok && !c.Empty() {
				cell.Closed = d.Closed
				cell.ClosedReason = d.ClosedReason
				cell.Slots = d.Slots
			}
			out = append(out, cell)
		}
		rows = append(rows, out)
	}

	writeJSON(w, http.StatusOK, calendarResponse{
		Year:       vm.Year,
		Month:      vm.Month,
		Today:      vm.Today,
		WeekLabels: calendar.WeekLabels(columns),
		Rows:       rows,
		Counts:     vm.Counts(),
	})
}

type bookRequest struct {
	Date string `json:"date"`
	Hour int    `json:"hour"`
}

func (s *HTTPServer) handleBook(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	var req bookRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	res, err := s.calendar.Book(r.Context(), sess, req.Date, req.Hour)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.board(r).Apply(res.View)
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	res, err := s.calendar.Cancel(r.Context(), sess, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.board(r).Apply(res.View)
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) handleMyShifts(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	shifts, err := s.calendar.MyShifts(r.Context(), sess)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"shifts": shifts})
}

func (s *HTTPServer) handleMyStats(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	totals, err := s.calendar.MyStats(r.Context(), sess)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, totals)
}

func (s *HTTPServer) handleBlock(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	var req service.BlockRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	res, err := s.calendar.Block(r.Context(), sess, req)
	if res == nil {
		s.writeServiceError(w, err)
		return
	}
	if err != nil {
		// some slots may already be written; the outcome goes out anyway
		s.log.Warn().Err(err).Str("summary", res.Summary()).Msg("block finished with error")
	}
	s.board(r).Apply(res.View)
	writeJSON(w, http.StatusOK, map[string]any{
		"summary": res.Summary(),
		"result":  res,
	})
}

func (s *HTTPServer) handleListClosedDays(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	if !sess.IsAdmin() {
		s.writeServiceError(w, domain.ErrForbidden)
		return
	}
	year, month, err := s.monthParams(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	days, err := s.calendar.ListClosedDays(r.Context(), sess, year, month)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"closed_days": days})
}

type closedDayRequest struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

func (s *HTTPServer) handleAddClosedDay(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	var req closedDayRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeServiceError(w, err)
		return
	}
	day, err := s.calendar.AddClosedDay(r.Context(), sess, req.Date, req.Reason)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, day)
}

func (s *HTTPServer) handleDeleteClosedDay(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	if err := s.calendar.DeleteClosedDay(r.Context(), sess, r.PathValue("id")); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleAdminStats(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	year, month, err := s.monthParams(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	rows, err := s.calendar.AdminStats(r.Context(), sess, year, month)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"period": period(year, month),
		"rows":   rows,
	})
}

func (s *HTTPServer) handleExportStats(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	year, month, err := s.monthParams(r)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	rows, err := s.calendar.AdminStats(r.Context(), sess, year, month)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	p := period(year, month)
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="stats_%s.xlsx"`, p))
	if err := export.Write(w, p, rows); err != nil {
		// headers are already sent
		s.log.Error().Err(err).Str("period", p).Msg("stats export failed")
	}
}

func (s *HTTPServer) handleUsers(w http.ResponseWriter, r *http.Request, sess *models.Session) {
	users, err := s.calendar.Users(r.Context(), sess)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// monthParams reads year and month, defaulting to the current month.
func (s *HTTPServer) monthParams(r *http.Request) (int, time.Month, error) {
	year, month := s.calendar.CurrentMonth()
	q := r.URL.Query()
	if raw := q.Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1 {
			return 0, 0, &badRequest{msg: "invalid year " + strconv.Quote(raw)}
		}
		year = y
	}
	if raw := q.Get("month"); raw != "" {
		m, err := strconv.Atoi(raw)
		if err != nil || m < 1 || m > 12 {
			return 0, 0, &badRequest{msg: "invalid month " + strconv.Quote(raw)}
		}
		month = time.Month(m)
	}
	return year, month, nil
}

func period(year int, month time.Month) string {
	return fmt.Sprintf("%04d-%02d", year, int(month))
}
