package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/samber/oops"

	"github.com/agendaweb/agenda/internal/models"
)

// ListContacts returns all contacts ordered by name with their tags. A
// non-empty tagFilter keeps only contacts carrying a matching tag.
func (s *Store) ListContacts(ctx context.Context, tagFilter string) ([]models.Contact, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, `
		SELECT c.id, c.name, c.phone_landline, c.phone_mobile, c.email, c.address, c.notes,
		       t.id, t.name
		  FROM contacts c
	 LEFT JOIN contact_tags ct ON ct.contact_id = c.id
	 LEFT JOIN tags t ON t.id = ct.tag_id
	  ORDER BY c.name, c.id, t.name`)
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "list contacts").Wrap(err)
	}
	defer rows.Close()

	contacts := []models.Contact{}
	index := make(map[int64]int)
	for rows.Next() {
		var (
			c       models.Contact
			tagID   sql.NullInt64
			tagName sql.NullString
		)
		if err := rows.Scan(&c.ID, &c.Name, &c.PhoneLandline, &c.PhoneMobile, &c.Email, &c.Address, &c.Notes, &tagID, &tagName); err != nil {
			return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "scan contact").Wrap(err)
		}

		i, ok := index[c.ID]
		if !ok {
			c.Tags = []models.Tag{}
			contacts = append(contacts, c)
			i = len(contacts) - 1
			index[c.ID] = i
		}
		if tagID.Valid {
			contacts[i].Tags = append(contacts[i].Tags, models.Tag{ID: tagID.Int64, Name: tagName.String})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "list contacts").Wrap(err)
	}

	if tagFilter == "" {
		return contacts, nil
	}
	filtered := []models.Contact{}
	for _, c := range contacts {
		if c.HasTag(tagFilter) {
			filtered = append(filtered, c)
		}
	}
	return filtered, nil
}

// GetContact returns one contact with its tags.
func (s *Store) GetContact(ctx context.Context, id int64) (*models.Contact, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	c := &models.Contact{Tags: []models.Tag{}}
	err := s.q.QueryRowContext(ctx, s.rebind(`
		SELECT id, name, phone_landline, phone_mobile, email, address, notes, created_at, updated_at
		  FROM contacts WHERE id = ?`), id).
		Scan(&c.ID, &c.Name, &c.PhoneLandline, &c.PhoneMobile, &c.Email, &c.Address, &c.Notes, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "get contact").With("contact_id", id).Wrap(err)
	}

	rows, err := s.q.QueryContext(ctx, s.rebind(`
		SELECT t.id, t.name
		  FROM tags t
		  JOIN contact_tags ct ON ct.tag_id = t.id
		 WHERE ct.contact_id = ?
	  ORDER BY t.name`), id)
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "get contact tags").With("contact_id", id).Wrap(err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "scan tag").Wrap(err)
		}
		c.Tags = append(c.Tags, t)
	}
	if err := rows.Err(); err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "get contact tags").Wrap(err)
	}
	return c, nil
}

// CreateContact inserts a contact and its tag links and returns the new id.
func (s *Store) CreateContact(ctx context.Context, in models.ContactInput) (int64, error) {
	var id int64
	err := s.inTransaction(ctx, func(tx *Store) error {
		ctx, cancel := tx.withTimeout(ctx)
		defer cancel()

		now := tx.timeArg(tx.now())
		err := tx.q.QueryRowContext(ctx, tx.rebind(`
			INSERT INTO contacts (name, phone_landline, phone_mobile, email, address, notes, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			RETURNING id`),
			in.Name, in.PhoneLandline, in.PhoneMobile, in.Email, in.Address, in.Notes, now, now,
		).Scan(&id)
		if err != nil {
			return oops.Code("STORE_QUERY_FAILED").With("operation", "create contact").Wrap(err)
		}
		return tx.linkTags(ctx, id, in.Tags)
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// UpdateContact replaces every field and the tag set of a contact.
func (s *Store) UpdateContact(ctx context.Context, id int64, in models.ContactInput) error {
	return s.inTransaction(ctx, func(tx *Store) error {
		ctx, cancel := tx.withTimeout(ctx)
		defer cancel()

		res, err := tx.q.ExecContext(ctx, tx.rebind(`
			UPDATE contacts SET
				name = ?, phone_landline = ?, phone_mobile = ?, email = ?, address = ?, notes = ?, updated_at = ?
			WHERE id = ?`),
			in.Name, in.PhoneLandline, in.PhoneMobile, in.Email, in.Address, in.Notes, tx.timeArg(tx.now()), id,
		)
		if err != nil {
			return oops.Code("STORE_QUERY_FAILED").With("operation", "update contact").With("contact_id", id).Wrap(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}

		if _, err := tx.q.ExecContext(ctx, tx.rebind("DELETE FROM contact_tags WHERE contact_id = ?"), id); err != nil {
			return oops.Code("STORE_QUERY_FAILED").With("operation", "clear contact tags").With("contact_id", id).Wrap(err)
		}
		return tx.linkTags(ctx, id, in.Tags)
	})
}

// DeleteContact removes a contact and its tag links.
func (s *Store) DeleteContact(ctx context.Context, id int64) error {
	return s.inTransaction(ctx, func(tx *Store) error {
		ctx, cancel := tx.withTimeout(ctx)
		defer cancel()

		if _, err := tx.q.ExecContext(ctx, tx.rebind("DELETE FROM contact_tags WHERE contact_id = ?"), id); err != nil {
			return oops.Code("STORE_QUERY_FAILED").With("operation", "clear contact tags").With("contact_id", id).Wrap(err)
		}
		res, err := tx.q.ExecContext(ctx, tx.rebind("DELETE FROM contacts WHERE id = ?"), id)
		if err != nil {
			return oops.Code("STORE_QUERY_FAILED").With("operation", "delete contact").With("contact_id", id).Wrap(err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (s *Store) linkTags(ctx context.Context, contactID int64, tagIDs []int64) error {
	for _, tagID := range tagIDs {
		_, err := s.q.ExecContext(ctx,
			s.rebind("INSERT INTO contact_tags (contact_id, tag_id) VALUES (?, ?)"),
			contactID, tagID,
		)
		if err != nil {
			if isForeignKeyViolation(err) {
				return oops.Code("STORE_UNKNOWN_TAG").With("tag_id", tagID).Wrap(ErrUnknownTag)
			}
			return oops.Code("STORE_QUERY_FAILED").With("operation", "link tag").With("tag_id", tagID).Wrap(err)
		}
	}
	return nil
}

// ListTags returns every tag ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]models.Tag, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.q.QueryContext(ctx, "SELECT id, name FROM tags ORDER BY name")
	if err != nil {
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "list tags").Wrap(err)
	}
	defer rows.Close()

	tags := []models.Tag{}
	for rows.Next() {
		var t models.Tag
		if err := rows.Scan(&t.ID, &t.Name); err != nil {
			return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "scan tag").Wrap(err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// CreateTag inserts a tag. A duplicate name returns ErrConflict.
func (s *Store) CreateTag(ctx context.Context, name string) (*models.Tag, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	t := &models.Tag{Name: name}
	err := s.q.QueryRowContext(ctx, s.rebind("INSERT INTO tags (name) VALUES (?) RETURNING id"), name).Scan(&t.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, oops.Code("STORE_TAG_EXISTS").With("name", name).Wrap(ErrConflict)
		}
		return nil, oops.Code("STORE_QUERY_FAILED").With("operation", "create tag").Wrap(err)
	}
	return t, nil
}
