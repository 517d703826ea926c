// internal/clients/postgres.go
package clients

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"librarium/internal/database"
)

const clientsTable = "clients"

var clientColumns = []interface{}{"client_id", "user_id", "email", "name", "surname", "patronymic", "birthdate"}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// PostgresRepository stores client profiles in the clients table.
type PostgresRepository struct {
	db *sqlx.DB
}

func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (p *PostgresRepository) Create(ctx context.Context, client *Client) error {
	var patronymic interface{}
	if client.Patronymic != nil {
		patronymic = *client.Patronymic
	}

	query, args, err := database.Build(database.Dialect.Insert(clientsTable).Prepared(true).Rows(goqu.Record{
		"client_id":  client.ID.String(),
		"user_id":    client.UserID.String(),
		"email":      client.Email,
		"name":       client.Name,
		"surname":    client.Surname,
		"patronymic": patronymic,
		"birthdate":  client.Birthdate.String(),
	}))
	if err != nil {
		return err
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		switch {
		case database.IsForeignKeyViolation(err):
			return fmt.Errorf("user %s: %w", client.UserID, ErrUserNotFound)
		case database.IsUniqueViolation(err):
			return fmt.Errorf("create client %s: %w", client.Email, ErrEmailTaken)
		}
		return database.Classify(err, "create client")
	}
	return nil
}

func (p *PostgresRepository) GetByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	return p.getOne(ctx, goqu.C("client_id").Eq(id.String()), "client "+id.String())
}

func (p *PostgresRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*Client, error) {
	return p.getOne(ctx, goqu.C("user_id").Eq(userID.String()), "client with user "+userID.String())
}

func (p *PostgresRepository) GetByEmail(ctx context.Context, email string) (*Client, error) {
	return p.getOne(ctx, goqu.C("email").Eq(email), "client with email "+email)
}

func (p *PostgresRepository) getOne(ctx context.Context, where exp.Expression, key string) (*Client, error) {
	query, args, err := database.Build(database.Dialect.From(clientsTable).Prepared(true).
		Select(clientColumns...).
		Where(where))
	if err != nil {
		return nil, err
	}

	var client Client
	if err := sqlx.GetContext(ctx, p.db, &client, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%s: %w", key, ErrClientNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	return &client, nil
}

func (p *PostgresRepository) List(ctx context.Context) ([]*Client, error) {
	return p.find(ctx, nil)
}

func (p *PostgresRepository) SearchByName(ctx context.Context, name string) ([]*Client, error) {
	pattern := "%" + likeEscaper.Replace(name) + "%"
	return p.find(ctx, goqu.Or(
		goqu.C("name").ILike(pattern),
		goqu.C("surname").ILike(pattern),
		goqu.C("patronymic").ILike(pattern),
	))
}

func (p *PostgresRepository) ListByBirthdate(ctx context.Context, start, end Date) ([]*Client, error) {
	return p.find(ctx, goqu.C("birthdate").Between(goqu.Range(start.String(), end.String())))
}

func (p *PostgresRepository) find(ctx context.Context, where exp.Expression) ([]*Client, error) {
	ds := database.Dialect.From(clientsTable).Prepared(true).
		Select(clientColumns...).
		Order(goqu.C("surname").Asc(), goqu.C("name").Asc(), goqu.C("email").Asc())
	if where != nil {
		ds = ds.Where(where)
	}

	query, args, err := database.Build(ds)
	if err != nil {
		return nil, err
	}

	clients := []*Client{}
	if err := sqlx.SelectContext(ctx, p.db, &clients, query, args...); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

func (p *PostgresRepository) Update(ctx context.Context, id uuid.UUID, update ClientUpdate) (*Client, error) {
	set := goqu.Record{}
	if update.Email != nil {
		set["email"] = *update.Email
	}
	if update.Name != nil {
		set["name"] = *update.Name
	}
	if update.Surname != nil {
		set["surname"] = *update.Surname
	}
	if update.Patronymic != nil {
		set["patronymic"] = *update.Patronymic
	}
	if update.Birthdate != nil {
		set["birthdate"] = update.Birthdate.String()
	}
	if len(set) == 0 {
		return p.GetByID(ctx, id)
	}

	query, args, err := database.Build(database.Dialect.Update(clientsTable).Prepared(true).
		Set(set).
		Where(goqu.C("client_id").Eq(id.String())).
		Returning(clientColumns...))
	if err != nil {
		return nil, err
	}

	var client Client
	if err := sqlx.GetContext(ctx, p.db, &client, query, args...); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, fmt.Errorf("client %s: %w", id, ErrClientNotFound)
		case database.IsUniqueViolation(err):
			return nil, fmt.Errorf("update client %s: %w", id, ErrEmailTaken)
		}
		return nil, database.Classify(err, "update client")
	}
	return &client, nil
}

// Delete fails with a conflict while checkouts still reference the client.
func (p *PostgresRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	query, args, err := database.Build(database.Dialect.Delete(clientsTable).Prepared(true).
		Where(goqu.C("client_id").Eq(id.String())))
	if err != nil {
		return false, err
	}

	res, err := p.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, database.Classify(err, "delete client")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete client: %w", err)
	}
	return n > 0, nil
}
