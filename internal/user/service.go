package user

import (
	"context"
	"time"

	"github.com/gandaldf/sqlt"
)

// Service holds the account use cases.
type Service struct {
	tpl     *sqlt.Template
	users   *Dao
	history *HistoryDao
	now     func() time.Time
}

// NewService wires both DAOs onto tpl.
func NewService(tpl *sqlt.Template) *Service {
	return &Service{
		tpl:     tpl,
		users:   NewDao(tpl),
		history: NewHistoryDao(tpl),
		now:     time.Now,
	}
}

func (s *Service) FindByID(ctx context.Context, id int64) (*User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *Service) FindAll(ctx context.Context) ([]*User, error) {
	return s.users.FindAll(ctx)
}

func (s *Service) Insert(ctx context.Context, u *User) error {
	return s.users.Insert(ctx, u)
}

// ChangePassword loads the user, stores the new password and appends a
// history row on a single connection. Nothing is written unless all three
// steps succeed.
func (s *Service) ChangePassword(ctx context.Context, id int64, password, changedBy string) error {
	return s.tpl.InTx(ctx, nil, func(ctx context.Context) error {
		u, err := s.users.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if err := u.ChangePassword(password); err != nil {
			return err
		}
		if err := s.users.Update(ctx, u); err != nil {
			return err
		}
		return s.history.Log(ctx, NewHistory(u, changedBy, s.now()))
	})
}

// History returns the recorded changes of a user.
func (s *Service) History(ctx context.Context, id int64) ([]History, error) {
	return s.history.FindByUser(ctx, id)
}
