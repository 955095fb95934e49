package mysql

// Repository aggregates the MySQL repositories
type Repository struct {
	ds *Datastore

	History *HistoryRepository
}

// NewRepository creates a new MySQL repository
func NewRepository(dsn string) (*Repository, error) {
	ds, err := NewDatastore(dsn)
	if err != nil {
		return nil, err
	}

	return &Repository{
		ds:      ds,
		History: NewHistoryRepository(ds),
	}, nil
}

// GetDatastore returns the underlying datastore for transaction support
func (r *Repository) GetDatastore() *Datastore {
	return r.ds
}

// Close closes the database connection
func (r *Repository) Close() error {
	return r.ds.Close()
}
