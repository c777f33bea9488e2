package store

import (
	"context"
	"fmt"

	"github.com/Sternrassler/vies-vat-checker/pkg/vat"
)

// cpudateLayout formats the local insertion time.
const cpudateLayout = "2006-01-02 15:04:05"

// Partner is one persisted row.
type Partner struct {
	PartnerID      string
	PartnerName    string
	CountryCode    string
	VATNumber      string
	CompanyName    string
	CompanyAddress string
	Status         string
	ErrorMessage   string
	RequestDate    string
	CPUDate        string
	SourceFile     string
	LineNumber     int
}

// InsertResults appends one row per result in a single transaction. Rows
// are never updated; a rerun adds new rows with a new cpudate.
func (s *Store) InsertResults(ctx context.Context, rs vat.ResultSet) error {
	if len(rs) == 0 {
		return nil
	}

	tx, err := s.Pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin insert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO partners (partner_id, partner_name, v_land, v_vatnr, v_cname, v_caddress,
  v_status, v_errmsg, v_reqdate, cpudate, source_file, line_nr)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	cpudate := s.now().Format(cpudateLayout)
	for _, res := range rs {
		if _, err := stmt.ExecContext(ctx,
			res.Record.PartnerID(),
			res.Record.Description,
			res.RemoteCountryCode,
			res.RemoteIdentifier,
			res.RemoteCompanyName,
			res.RemoteCompanyAddress,
			string(res.Status),
			res.ErrorMessage,
			res.RequestDate,
			cpudate,
			res.Record.SourceFile,
			res.Record.LineNumber,
		); err != nil {
			return fmt.Errorf("insert %s line %d: %w", res.Record.SourceFile, res.Record.LineNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit insert: %w", err)
	}

	s.logger.Info().Int("rows", len(rs)).Str("file", rs[0].Record.SourceFile).Msg("Results persisted")
	return nil
}

// ListPartners returns the rows for partnerID in insertion order. An empty
// partnerID returns every row.
func (s *Store) ListPartners(ctx context.Context, partnerID string) ([]Partner, error) {
	q := `
SELECT partner_id, partner_name, v_land, v_vatnr, v_cname, v_caddress, v_status,
  v_errmsg, v_reqdate, cpudate, source_file, line_nr
FROM partners`
	var args []any
	if partnerID != "" {
		q += ` WHERE partner_id = ?`
		args = append(args, partnerID)
	}
	q += ` ORDER BY id;`

	rows, err := s.Pool.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list partners: %w", err)
	}
	defer rows.Close()

	var out []Partner
	for rows.Next() {
		var p Partner
		if err := rows.Scan(&p.PartnerID, &p.PartnerName, &p.CountryCode, &p.VATNumber,
			&p.CompanyName, &p.CompanyAddress, &p.Status, &p.ErrorMessage, &p.RequestDate,
			&p.CPUDate, &p.SourceFile, &p.LineNumber); err != nil {
			return nil, fmt.Errorf("scan partner: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
