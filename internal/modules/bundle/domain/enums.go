//go:generate go run github.com/abice/go-enum --file=$GOFILE --names --nocase

package domain

// StorageDriver selects the bundle repository implementation
// ENUM(sqlite,file)
type StorageDriver string

// AppEnv represents the application environment
// ENUM(local,production,development,testing)
type AppEnv string
