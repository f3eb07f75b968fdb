package datastore

// BaseRepository is the version-management surface shared by every merkle
// tree backed repository.
type BaseRepository interface {
	LoadLatest() (int64, error)
	LoadVersion(version int64) error
	Rollback()
	Hash() ([]byte, error)
	Save() ([]byte, int64, error)
}
