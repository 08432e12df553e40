package booking

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/studiobook/libs/auth"
	"github.com/md-rashed-zaman/studiobook/libs/db"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/studiobook/services/booking-service/internal/storage"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

const AdminRole = "admin"

// ListStaff returns bookable staff with their settings. The template staff
// member is never listed; inactive staff only appear when includeInactive is set.
func (s *Service) ListStaff(ctx context.Context, includeInactive bool) ([]model.Staff, error) {
	staff, err := s.catalog.ListStaff(ctx, !includeInactive)
	if err != nil {
		return nil, err
	}
	out := make([]model.Staff, 0, len(staff))
	for _, st := range staff {
		if st.IsDefault {
			continue
		}
		settings, err := s.schedule.GetSettings(ctx, nil, st.ID)
		if storage.IsNotFound(err) {
			settings, err = model.DefaultStaffSettings(st.ID), nil
		}
		if err != nil {
			return nil, err
		}
		st.Settings = &settings
		out = append(out, st)
	}
	return out, nil
}

type StaffInput struct {
	Name      *string
	AvatarURL *string
	IsActive  *bool
}

// CreateStaff adds a staff member seeded from the template's settings and
// active time blocks.
func (s *Service) CreateStaff(ctx context.Context, in StaffInput) (model.Staff, error) {
	if in.Name == nil || strings.TrimSpace(*in.Name) == "" {
		return model.Staff{}, invalid("name", "is required")
	}
	st := model.Staff{ID: uuid.NewString(), Name: strings.TrimSpace(*in.Name), IsActive: true}
	if in.AvatarURL != nil {
		st.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}
	if in.IsActive != nil {
		st.IsActive = *in.IsActive
	}

	var settings model.StaffSettings
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.catalog.CreateStaff(ctx, tx, &st); err != nil {
			return err
		}
		var err error
		settings, err = s.applyTemplate(ctx, tx, st.ID)
		return err
	})
	if err != nil {
		return model.Staff{}, err
	}
	st.Settings = &settings
	s.logger.Info("staff created", "staff_id", st.ID)
	return st, nil
}

// applyTemplate copies the template staff's settings onto staffID and clones
// the template's active time blocks. Without a template, defaults apply.
func (s *Service) applyTemplate(ctx context.Context, tx pgx.Tx, staffID string) (model.StaffSettings, error) {
	settings := model.DefaultStaffSettings(staffID)
	var blocks []model.TimeBlock

	tmpl, err := s.catalog.GetTemplateStaff(ctx)
	switch {
	case storage.IsNotFound(err):
	case err != nil:
		return model.StaffSettings{}, err
	default:
		ts, err := s.schedule.GetSettings(ctx, tx, tmpl.ID)
		if err == nil {
			settings = ts
			settings.StaffID = staffID
		} else if !storage.IsNotFound(err) {
			return model.StaffSettings{}, err
		}
		blocks, err = s.catalog.ListTimeBlocks(ctx, tx, tmpl.ID, true)
		if err != nil {
			return model.StaffSettings{}, err
		}
	}

	if err := s.schedule.UpsertSettings(ctx, tx, settings); err != nil {
		return model.StaffSettings{}, err
	}
	for _, b := range blocks {
		b.ID = uuid.NewString()
		b.StaffID = staffID
		b.IsActive = true
		if err := s.catalog.CreateTimeBlock(ctx, tx, b); err != nil {
			return model.StaffSettings{}, err
		}
	}
	return settings, nil
}

func (s *Service) UpdateStaff(ctx context.Context, id string, in StaffInput) (model.Staff, error) {
	st, err := s.requireStaff(ctx, id)
	if err != nil {
		return model.Staff{}, err
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return model.Staff{}, invalid("name", "must not be empty")
		}
		st.Name = name
	}
	if in.AvatarURL != nil {
		st.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}
	if in.IsActive != nil {
		st.IsActive = *in.IsActive
	}
	if err := s.catalog.UpdateStaff(ctx, st); err != nil {
		if storage.IsNotFound(err) {
			return model.Staff{}, notFound("staff", id)
		}
		return model.Staff{}, err
	}
	return st, nil
}

// DeactivateStaff hides a staff member; their appointments are kept.
func (s *Service) DeactivateStaff(ctx context.Context, id string) error {
	inactive := false
	_, err := s.UpdateStaff(ctx, id, StaffInput{IsActive: &inactive})
	return err
}

// RestoreDefaults resets a staff member's settings and time blocks to the template's.
func (s *Service) RestoreDefaults(ctx context.Context, staffID string) (model.StaffSettings, error) {
	if _, err := s.requireStaff(ctx, staffID); err != nil {
		return model.StaffSettings{}, err
	}
	var settings model.StaffSettings
	err := db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		if err := s.catalog.DeactivateTimeBlocks(ctx, tx, staffID); err != nil {
			return err
		}
		var err error
		settings, err = s.applyTemplate(ctx, tx, staffID)
		return err
	})
	if err != nil {
		return model.StaffSettings{}, err
	}
	s.logger.Info("staff defaults restored", "staff_id", staffID)
	return settings, nil
}

// RestoreTimeBlocks replaces a staff member's active time blocks with copies of the template's.
func (s *Service) RestoreTimeBlocks(ctx context.Context, staffID string) ([]model.TimeBlock, error) {
	if _, err := s.requireStaff(ctx, staffID); err != nil {
		return nil, err
	}
	tmpl, err := s.catalog.GetTemplateStaff(ctx)
	if storage.IsNotFound(err) {
		return nil, ErrTemplateMissing
	}
	if err != nil {
		return nil, err
	}
	var out []model.TimeBlock
	err = db.InTx(ctx, s.db, func(tx pgx.Tx) error {
		blocks, err := s.catalog.ListTimeBlocks(ctx, tx, tmpl.ID, true)
		if err != nil {
			return err
		}
		if err := s.catalog.DeactivateTimeBlocks(ctx, tx, staffID); err != nil {
			return err
		}
		for _, b := range blocks {
			b.ID = uuid.NewString()
			b.StaffID = staffID
			b.IsActive = true
			if err := s.catalog.CreateTimeBlock(ctx, tx, b); err != nil {
				return err
			}
			out = append(out, b)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) ListTimeBlocks(ctx context.Context, staffID string, includeInactive bool) ([]model.TimeBlock, error) {
	if _, err := s.requireStaff(ctx, staffID); err != nil {
		return nil, err
	}
	blocks, err := s.catalog.ListTimeBlocks(ctx, nil, staffID, !includeInactive)
	if err != nil {
		return nil, err
	}
	if blocks == nil {
		blocks = []model.TimeBlock{}
	}
	return blocks, nil
}

func validateTimeBlock(tb model.TimeBlock) error {
	switch {
	case strings.TrimSpace(tb.Name) == "":
		return invalid("name", "is required")
	case tb.DurationMins < 1:
		return invalid("durationMins", "must be at least 1")
	case !hexColor.MatchString(tb.Color):
		return invalid("color", "must be #RRGGBB")
	}
	return nil
}

func (s *Service) CreateTimeBlock(ctx context.Context, tb model.TimeBlock) (model.TimeBlock, error) {
	if _, err := s.requireStaff(ctx, tb.StaffID); err != nil {
		return model.TimeBlock{}, err
	}
	tb.Name = strings.TrimSpace(tb.Name)
	if err := validateTimeBlock(tb); err != nil {
		return model.TimeBlock{}, err
	}
	tb.ID = uuid.NewString()
	tb.IsActive = true
	if err := s.catalog.CreateTimeBlock(ctx, nil, tb); err != nil {
		return model.TimeBlock{}, err
	}
	return tb, nil
}

type TimeBlockPatch struct {
	Name         *string
	DurationMins *int
	Color        *string
	IsActive     *bool
}

// UpdateTimeBlock edits a block. Existing appointments keep their stored end time.
func (s *Service) UpdateTimeBlock(ctx context.Context, id string, p TimeBlockPatch) (model.TimeBlock, error) {
	tb, err := s.catalog.GetTimeBlock(ctx, id)
	if storage.IsNotFound(err) {
		return model.TimeBlock{}, notFound("time block", id)
	}
	if err != nil {
		return model.TimeBlock{}, err
	}
	if p.Name != nil {
		tb.Name = strings.TrimSpace(*p.Name)
	}
	if p.DurationMins != nil {
		tb.DurationMins = *p.DurationMins
	}
	if p.Color != nil {
		tb.Color = *p.Color
	}
	if p.IsActive != nil {
		tb.IsActive = *p.IsActive
	}
	if err := validateTimeBlock(tb); err != nil {
		return model.TimeBlock{}, err
	}
	if err := s.catalog.UpdateTimeBlock(ctx, nil, tb); err != nil {
		if storage.IsNotFound(err) {
			return model.TimeBlock{}, notFound("time block", id)
		}
		return model.TimeBlock{}, err
	}
	return tb, nil
}

// DeleteTimeBlock removes a block that no live appointment uses. A block in
// use is deactivated instead and deactivated is reported true.
func (s *Service) DeleteTimeBlock(ctx context.Context, id string) (deactivated bool, err error) {
	tb, err := s.catalog.GetTimeBlock(ctx, id)
	if storage.IsNotFound(err) {
		return false, notFound("time block", id)
	}
	if err != nil {
		return false, err
	}
	n, err := s.appts.CountActiveByTimeBlock(ctx, nil, id)
	if err != nil {
		return false, err
	}
	if n > 0 {
		tb.IsActive = false
		if err := s.catalog.UpdateTimeBlock(ctx, nil, tb); err != nil {
			return false, err
		}
		s.logger.Warn("time block in use, deactivated", "time_block_id", id, "appointments", n)
		return true, nil
	}
	if err := s.catalog.DeleteTimeBlock(ctx, nil, id); err != nil {
		if storage.IsNotFound(err) {
			return false, notFound("time block", id)
		}
		return false, err
	}
	return false, nil
}

type TokenInput struct {
	StaffID     string
	TimeBlockID string
	ClientName  string
	Phone       string
	Email       string
	Wechat      string
	ExpiresAt   *time.Time
}

type IssuedToken struct {
	model.BookingToken
	URL string `json:"url"`
}

func (s *Service) ListTokens(ctx context.Context) ([]IssuedToken, error) {
	tokens, err := s.catalog.ListTokens(ctx, 50)
	if err != nil {
		return nil, err
	}
	out := make([]IssuedToken, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, IssuedToken{BookingToken: t, URL: s.bookingURL(t.Token)})
	}
	return out, nil
}

// CreateToken issues a single-use booking link, optionally prefilled.
func (s *Service) CreateToken(ctx context.Context, in TokenInput) (IssuedToken, error) {
	if in.StaffID != "" {
		if _, err := s.requireStaff(ctx, in.StaffID); err != nil {
			return IssuedToken{}, err
		}
	}
	if in.TimeBlockID != "" {
		tb, err := s.catalog.GetTimeBlock(ctx, in.TimeBlockID)
		if storage.IsNotFound(err) {
			return IssuedToken{}, notFound("time block", in.TimeBlockID)
		}
		if err != nil {
			return IssuedToken{}, err
		}
		if in.StaffID != "" && tb.StaffID != in.StaffID {
			return IssuedToken{}, invalid("timeBlockId", "belongs to a different staff member")
		}
	}
	if in.Email != "" {
		if err := validateContact(in.Phone, in.Email, in.Wechat); err != nil {
			return IssuedToken{}, err
		}
	}
	if in.ExpiresAt != nil && !in.ExpiresAt.After(s.now()) {
		return IssuedToken{}, invalid("expiresAt", "must be in the future")
	}
	raw, err := randomToken()
	if err != nil {
		return IssuedToken{}, err
	}
	t := model.BookingToken{
		ID:          uuid.NewString(),
		Token:       raw,
		StaffID:     in.StaffID,
		TimeBlockID: in.TimeBlockID,
		ClientName:  strings.TrimSpace(in.ClientName),
		Phone:       strings.TrimSpace(in.Phone),
		Email:       strings.TrimSpace(in.Email),
		Wechat:      strings.TrimSpace(in.Wechat),
		ExpiresAt:   in.ExpiresAt,
	}
	if err := s.catalog.CreateToken(ctx, &t); err != nil {
		return IssuedToken{}, err
	}
	return IssuedToken{BookingToken: t, URL: s.bookingURL(t.Token)}, nil
}

func (s *Service) DeleteToken(ctx context.Context, id string) error {
	err := s.catalog.DeleteToken(ctx, id)
	if storage.IsNotFound(err) {
		return notFound("booking token", id)
	}
	return err
}

// LookupToken returns the prefill data of a usable booking link.
func (s *Service) LookupToken(ctx context.Context, token string) (model.BookingToken, error) {
	t, err := s.catalog.GetToken(ctx, nil, token)
	if storage.IsNotFound(err) {
		return model.BookingToken{}, notFound("booking token", token)
	}
	if err != nil {
		return model.BookingToken{}, err
	}
	if !t.Usable(s.now()) {
		return model.BookingToken{}, ErrTokenInvalid
	}
	return t, nil
}

func (s *Service) bookingURL(token string) string {
	return s.publicBaseURL + "/book/" + token
}

func randomToken() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Login verifies admin credentials and issues a session token.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	user, err := s.catalog.GetAdminUser(ctx, strings.TrimSpace(username))
	if storage.IsNotFound(err) {
		return Session{}, auth.ErrInvalidCredentials
	}
	if err != nil {
		return Session{}, err
	}
	if err := auth.CheckPassword(user.PasswordHash, password); err != nil {
		s.logger.Warn("admin login failed", "username", user.Username)
		return Session{}, auth.ErrInvalidCredentials
	}
	token, exp, err := auth.Issue(user.ID, AdminRole, s.jwtSecret, s.tokenTTL, s.now())
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp}, nil
}
