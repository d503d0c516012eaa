package postgres

// Postgres - model.Store implementation backed by the shared gorm
// connection from config services.
type Postgres struct {
}
