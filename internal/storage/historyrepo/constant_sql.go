package historyrepo

const (
	sqlCreateTable = `
		CREATE TABLE IF NOT EXISTS delivery_history (
		    id BIGSERIAL PRIMARY KEY,
		    campaign_id VARCHAR(64) NOT NULL,
		    sender_email VARCHAR(320) NOT NULL,
		    recipient_email VARCHAR(320) NOT NULL,
		    status VARCHAR(16) NOT NULL,
		    detail TEXT NOT NULL DEFAULT '',
		    duration_ms BIGINT NOT NULL DEFAULT 0,
		    created_at TIMESTAMPTZ NOT NULL
		);`

	sqlCreateIndex = `CREATE INDEX IF NOT EXISTS delivery_history_campaign_idx ON delivery_history (campaign_id, id);`

	sqlInsert = `
		INSERT INTO delivery_history (campaign_id, sender_email, recipient_email, status, detail, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING *;`

	sqlListByCampaign = `SELECT * FROM delivery_history WHERE campaign_id = $1 ORDER BY id ASC LIMIT $2;`
)
