// internal/membership/postgres.go
package membership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/jmoiron/sqlx"

	"librarium/internal/database"
)

const usersTable = "users"

var userColumns = []interface{}{"user_id", "email", "password_hash", "password_salt", "roles", "registration_date"}

type userRow struct {
	ID               uuid.UUID `db:"user_id"`
	Email            string    `db:"email"`
	PasswordHash     string    `db:"password_hash"`
	PasswordSalt     string    `db:"password_salt"`
	Roles            string    `db:"roles"`
	RegistrationDate time.Time `db:"registration_date"`
}

func (r userRow) toUser() (*User, error) {
	var roles []Role
	if err := jsoniter.ConfigFastest.UnmarshalFromString(r.Roles, &roles); err != nil {
		return nil, fmt.Errorf("decode roles of user %s: %w", r.ID, err)
	}
	return &User{
		ID:               r.ID,
		Email:            r.Email,
		PasswordHash:     r.PasswordHash,
		PasswordSalt:     r.PasswordSalt,
		Roles:            roles,
		RegistrationDate: r.RegistrationDate,
	}, nil
}

func encodeRoles(roles []Role) (string, error) {
	return jsoniter.ConfigFastest.MarshalToString(roles)
}

// PostgresRepository stores users in the users table.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (p *PostgresRepository) Create(ctx context.Context, user *User) error {
	roles, err := encodeRoles(user.Roles)
	if err != nil {
		return err
	}

	query, args, err := database.Build(database.Dialect.Insert(usersTable).Prepared(true).Rows(goqu.Record{
		"user_id":           user.ID.String(),
		"email":             user.Email,
		"password_hash":     user.PasswordHash,
		"password_salt":     user.PasswordSalt,
		"roles":             roles,
		"registration_date": user.RegistrationDate,
	}))
	if err != nil {
		return err
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", user.Email, ErrEmailTaken)
		}
		return database.Classify(err, "create user")
	}
	return nil
}

func (p *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	return p.getOne(ctx, goqu.C("user_id").Eq(id.String()), id.String())
}

func (p *PostgresRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return p.getOne(ctx, goqu.C("email").Eq(email), email)
}

func (p *PostgresRepository) getOne(ctx context.Context, where exp.Expression, key string) (*User, error) {
	query, args, err := database.Build(database.Dialect.From(usersTable).Prepared(true).Select(userColumns...).Where(where))
	if err != nil {
		return nil, err
	}

	var row userRow
	if err := sqlx.GetContext(ctx, p.db, &row, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("user %s: %w", key, ErrUserNotFound)
		}
		return nil, fmt.Errorf("get user %s: %w", key, err)
	}
	return row.toUser()
}

func (p *PostgresRepository) List(ctx context.Context) ([]*User, error) {
	query, args, err := database.Build(database.Dialect.From(usersTable).Prepared(true).
		Select(userColumns...).
		Order(goqu.C("registration_date").Asc(), goqu.C("email").Asc()))
	if err != nil {
		return nil, err
	}

	var rows []userRow
	if err := sqlx.SelectContext(ctx, p.db, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]*User, 0, len(rows))
	for _, r := range rows {
		u, err := r.toUser()
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

func (p *PostgresRepository) Update(ctx context.Context, id uuid.UUID, update UserUpdate) (*User, error) {
	set := goqu.Record{}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if update.Roles != nil {
		roles, err := encodeRoles(update.Roles)
		if err != nil {
			return nil, err
		}
		set["roles"] = roles
	}
	if len(set) == 0 {
		return p.GetByID(ctx, id)
	}

	query, args, err := database.Build(database.Dialect.Update(usersTable).Prepared(true).
		Set(set).
		Where(goqu.C("user_id").Eq(id.String())).
		Returning(userColumns...))
	if err != nil {
		return nil, err
	}

	var row userRow
	if err := sqlx.GetContext(ctx, p.db, &row, query, args...); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("user %s: %w", id, ErrUserNotFound)
		case database.IsUniqueViolation(err):
			return nil, fmt.Errorf("update user %s: %w", id, ErrEmailTaken)
		}
		return nil, database.Classify(err, "update user")
	}
	return row.toUser()
}

func (p *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	query, args, err := database.Build(database.Dialect.Delete(usersTable).Prepared(true).
		Where(goqu.C("user_id").Eq(id.String())))
	if err != nil {
		return false, err
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, database.Classify(err, "delete user")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete user: %w", err)
	}
	return n > 0, nil
}
