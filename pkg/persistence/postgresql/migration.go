package postgresql

func migrations() map[int]string {
	return map[int]string{
		1: `
			-- Create sessions table
			CREATE TABLE sessions (
				session_id UUID PRIMARY KEY,
				query TEXT NOT NULL,
				complexity VARCHAR(20) NOT NULL DEFAULT '',
				final_answer TEXT NOT NULL DEFAULT '',
				state JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE INDEX idx_sessions_complexity ON sessions(complexity);
			CREATE INDEX idx_sessions_created_at ON sessions(created_at);
		`,
	}
}
