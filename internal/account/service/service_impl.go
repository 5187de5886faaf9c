package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/badrx15/creavisionbot/internal/account/domain"
	"github.com/badrx15/creavisionbot/internal/clock"
	"github.com/badrx15/creavisionbot/internal/config"
	"github.com/badrx15/creavisionbot/internal/locks"
	"github.com/badrx15/creavisionbot/internal/notify"
	"github.com/badrx15/creavisionbot/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Cfg      config.Config
	Catalog  *config.CatalogHolder
	Clock    clock.Clock
	Repo     domain.Repository
	Locker   locks.Locker
	Notifier notify.Notifier `optional:"true"`
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	cfg      config.Config
	catalog  *config.CatalogHolder
	clock    clock.Clock
	repo     domain.Repository
	locker   locks.Locker
	notifier notify.Notifier
}

func New(p Params) domain.Service {
	notifier := p.Notifier
	if notifier == nil {
		notifier = notify.NoOpNotifier{}
	}
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("account.service"),
		cfg:      p.Cfg,
		catalog:  p.Catalog,
		clock:    p.Clock,
		repo:     p.Repo,
		locker:   p.Locker,
		notifier: notifier,
	}
}

func (s *Service) Ensure(ctx context.Context, profile domain.Profile) (domain.Account, bool, error) {
	if profile.UserID == 0 {
		return domain.Account{}, false, domain.ErrInvalidUser
	}
	profile.Username = strings.TrimPrefix(strings.TrimSpace(profile.Username), "@")
	profile.FirstName = strings.TrimSpace(profile.FirstName)
	profile.LastName = strings.TrimSpace(profile.LastName)

	now := s.clock.Now()
	account := domain.Account{
		UserID:       profile.UserID,
		Username:     profile.Username,
		FirstName:    profile.FirstName,
		LastName:     profile.LastName,
		Credits:      s.cfg.Credits.Default,
		IsAdmin:      s.cfg.IsAdmin(profile.UserID),
		RegisteredAt: now,
		UpdatedAt:    now,
	}

	created, err := s.repo.InsertIfAbsent(ctx, s.db, &account)
	if err != nil {
		return domain.Account{}, false, err
	}

	if created {
		s.log.Info("account registered",
			zap.Int64("user_id", profile.UserID),
			zap.Int64("credits", account.Credits),
		)
		msg := fmt.Sprintf("New user registered: %s (id %d)", displayOrID(profile), profile.UserID)
		if err := s.notifier.NotifyAdmins(ctx, msg); err != nil {
			s.log.Warn("admin notification failed", zap.Int64("user_id", profile.UserID), zap.Error(err))
		}
		return account, true, nil
	}

	existing, err := s.repo.FindByID(ctx, s.db, profile.UserID)
	if err != nil {
		return domain.Account{}, false, err
	}
	if existing == nil {
		return domain.Account{}, false, domain.ErrAccountNotFound
	}

	if profileChanged(*existing, profile) {
		if err := s.repo.UpdateProfile(ctx, s.db, profile, now); err != nil {
			return domain.Account{}, false, err
		}
		existing.Username = profile.Username
		existing.FirstName = profile.FirstName
		existing.LastName = profile.LastName
		existing.UpdatedAt = now
	}
	if !existing.IsAdmin && s.cfg.IsAdmin(profile.UserID) {
		if _, err := s.repo.SetAdmin(ctx, s.db, profile.UserID, true, now); err != nil {
			return domain.Account{}, false, err
		}
		existing.IsAdmin = true
	}

	return *existing, false, nil
}

func (s *Service) Get(ctx context.Context, userID int64) (domain.Account, error) {
	if userID == 0 {
		return domain.Account{}, domain.ErrInvalidUser
	}
	account, err := s.repo.FindByID(ctx, s.db, userID)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrAccountNotFound
	}
	return *account, nil
}

func (s *Service) List(ctx context.Context, req domain.ListAccountRequest) (domain.ListAccountResponse, error) {
	page := pagination.Pagination{PageToken: req.PageToken, PageSize: req.PageSize}.Normalize()

	cursor, err := pagination.DecodeCursor(page.PageToken)
	if err != nil {
		return domain.ListAccountResponse{}, err
	}
	var after int64
	if cursor != nil {
		after, err = strconv.ParseInt(cursor.ID, 10, 64)
		if err != nil {
			return domain.ListAccountResponse{}, pagination.ErrInvalidPageToken
		}
	}

	items, err := s.repo.List(ctx, s.db, after, page.PageSize+1)
	if err != nil {
		return domain.ListAccountResponse{}, err
	}

	items, pageInfo := pagination.Trim(items, page.PageSize, func(a *domain.Account) string {
		return strconv.FormatInt(a.UserID, 10)
	})

	accounts := make([]domain.Account, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		accounts = append(accounts, *item)
	}

	return domain.ListAccountResponse{PageInfo: pageInfo, Accounts: accounts}, nil
}

func (s *Service) SetAdmin(ctx context.Context, userID int64, isAdmin bool) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	affected, err := s.repo.SetAdmin(ctx, s.db, userID, isAdmin, s.clock.Now())
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrAccountNotFound
	}
	s.log.Info("account admin flag changed", zap.Int64("user_id", userID), zap.Bool("is_admin", isAdmin))
	return nil
}

func (s *Service) Preference(ctx context.Context, userID int64, key string) (string, bool, error) {
	key = strings.TrimSpace(key)
	if userID == 0 {
		return "", false, domain.ErrInvalidUser
	}
	if key == "" {
		return "", false, domain.ErrInvalidPreference
	}
	pref, err := s.repo.FindPreference(ctx, s.db, userID, key)
	if err != nil {
		return "", false, err
	}
	if pref == nil {
		return "", false, nil
	}
	return pref.Value, true, nil
}

func (s *Service) SetPreference(ctx context.Context, userID int64, key, value string) error {
	key = strings.TrimSpace(key)
	if userID == 0 {
		return domain.ErrInvalidUser
	}
	if key == "" {
		return domain.ErrInvalidPreference
	}
	return s.repo.UpsertPreference(ctx, s.db, &domain.Preference{
		UserID:    userID,
		Key:       key,
		Value:     value,
		UpdatedAt: s.clock.Now(),
	})
}

// Persona returns the user's selected persona, or the catalog default when unset or retired.
func (s *Service) Persona(ctx context.Context, userID int64) (config.Persona, error) {
	value, _, err := s.Preference(ctx, userID, domain.PreferenceKeyPersona)
	if err != nil {
		return config.Persona{}, err
	}
	return s.catalog.Get().ResolvePersona(value), nil
}

func (s *Service) SetPersona(ctx context.Context, userID int64, personaID string) (config.Persona, error) {
	persona, ok := s.catalog.Get().Persona(strings.TrimSpace(personaID))
	if !ok {
		return config.Persona{}, domain.ErrUnknownPersona
	}
	if err := s.SetPreference(ctx, userID, domain.PreferenceKeyPersona, persona.ID); err != nil {
		return config.Persona{}, err
	}
	return persona, nil
}

func (s *Service) Delete(ctx context.Context, userID int64) error {
	if userID == 0 {
		return domain.ErrInvalidUser
	}

	// Serialized with turns and conversation updates for the same user.
	unlock, err := s.locker.Lock(ctx, locks.UserKey(userID))
	if err != nil {
		return err
	}
	defer unlock()

	var affected int64
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		n, err := s.repo.DeleteCascade(ctx, tx, userID)
		if err != nil {
			return err
		}
		affected = n
		return nil
	})
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrAccountNotFound
	}

	s.log.Info("account deleted", zap.Int64("user_id", userID))
	return nil
}

func profileChanged(a domain.Account, p domain.Profile) bool {
	return a.Username != p.Username || a.FirstName != p.FirstName || a.LastName != p.LastName
}

func displayOrID(p domain.Profile) string {
	if name := p.DisplayName(); name != "" {
		return name
	}
	return "unknown"
}
