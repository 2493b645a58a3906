package migration

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Header keys recognised in the leading comment block of a migration file.
const (
	headerDescription = "Description"
	headerRevision    = "Revision"
	headerRevises     = "Revises"
)

// fileScannerImpl implements the FileScanner interface over an fs.FS
type fileScannerImpl struct {
	fsys fs.FS
	root string

	// migrationFilePattern defines the expected migration file naming pattern
	migrationFilePattern *regexp.Regexp
}

// NewFileScanner creates a FileScanner reading migrations from root inside fsys.
// Pass os.DirFS(dir) with root "." for an on-disk directory, or an embed.FS.
func NewFileScanner(fsys fs.FS, root string) FileScanner {
	// Pattern matches: {version}_{description}[.up|.down].sql
	pattern := regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_-]+)(?:\.(up|down))?\.sql$`)

	if root == "" {
		root = "."
	}

	return &fileScannerImpl{
		fsys:                 fsys,
		root:                 root,
		migrationFilePattern: pattern,
	}
}

// fileName holds the parts of a validated migration file name.
type fileName struct {
	version     string
	description string
	direction   Direction
	path        string
}

// ScanMigrations scans the migration root for migration files
func (s *fileScannerImpl) ScanMigrations() ([]Migration, error) {
	if _, err := fs.Stat(s.fsys, s.root); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, NewFileSystemError(s.root, "scan directory", fmt.Errorf("migration directory does not exist"))
		}
		return nil, NewFileSystemError(s.root, "scan directory", err)
	}

	entries, err := fs.ReadDir(s.fsys, s.root)
	if err != nil {
		return nil, NewFileSystemError(s.root, "read directory", err)
	}

	// Keyed by numeric version so 1 and 001 collide.
	byVersion := make(map[int]*Migration)
	upFiles := make(map[int]string)
	downFiles := make(map[int]fileName)

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		if err := s.ValidateFileName(entry.Name()); err != nil {
			return nil, NewMigrationError("", entry.Name(), "validate filename", err)
		}

		name := s.splitFileName(entry.Name())
		name.path = path.Join(s.root, entry.Name())
		number, _ := strconv.Atoi(name.version)

		if name.direction == Down {
			if existing, ok := downFiles[number]; ok {
				return nil, NewMigrationError(name.version, entry.Name(), "check duplicates",
					fmt.Errorf("%w: down version %s found in both %s and %s",
						ErrDuplicateVersion, name.version, path.Base(existing.path), entry.Name()))
			}
			downFiles[number] = name
			continue
		}

		if existing, ok := upFiles[number]; ok {
			return nil, NewMigrationError(name.version, entry.Name(), "check duplicates",
				fmt.Errorf("%w: version %s found in both %s and %s",
					ErrDuplicateVersion, name.version, existing, entry.Name()))
		}
		upFiles[number] = entry.Name()

		migration, err := s.ParseMigrationFile(name.path)
		if err != nil {
			return nil, err
		}
		byVersion[number] = migration
	}

	for number, down := range downFiles {
		migration, ok := byVersion[number]
		if !ok {
			return nil, NewMigrationError(down.version, down.path, "pair down migration",
				fmt.Errorf("%w: no forward migration for version %s", ErrMigrationNotFound, down.version))
		}
		downSQL, err := s.readSQL(down.version, down.path)
		if err != nil {
			return nil, err
		}
		migration.DownSQL = downSQL
		migration.DownPath = down.path
	}

	migrations := make([]Migration, 0, len(byVersion))
	for _, migration := range byVersion {
		migrations = append(migrations, *migration)
	}

	sort.Slice(migrations, func(i, j int) bool {
		versionI, _ := strconv.Atoi(migrations[i].Version)
		versionJ, _ := strconv.Atoi(migrations[j].Version)
		return versionI < versionJ
	})

	return migrations, nil
}

// ValidateFileName checks if migration file follows naming convention
func (s *fileScannerImpl) ValidateFileName(filename string) error {
	matches := s.migrationFilePattern.FindStringSubmatch(filename)
	if matches == nil {
		return fmt.Errorf("%w: filename '%s' does not match pattern '{version}_{description}[.up|.down].sql'",
			ErrInvalidMigrationFile, filename)
	}

	if _, err := strconv.Atoi(matches[1]); err != nil {
		return fmt.Errorf("%w: version '%s' in filename '%s' is not a valid number",
			ErrInvalidVersion, matches[1], filename)
	}

	if strings.Trim(matches[2], "_-") == "" {
		return fmt.Errorf("%w: description in filename '%s' cannot be empty",
			ErrInvalidMigrationFile, filename)
	}

	return nil
}

// ParseMigrationFile reads and parses a single forward migration file
func (s *fileScannerImpl) ParseMigrationFile(filePath string) (*Migration, error) {
	filename := path.Base(filePath)

	if err := s.ValidateFileName(filename); err != nil {
		return nil, NewMigrationError("", filePath, "validate filename", err)
	}

	name := s.splitFileName(filename)
	if name.direction == Down {
		return nil, NewMigrationError(name.version, filePath, "parse migration",
			fmt.Errorf("%w: %s is a down migration", ErrInvalidMigrationFile, filename))
	}

	sqlContent, err := s.readSQL(name.version, filePath)
	if err != nil {
		return nil, err
	}

	header := parseHeader(sqlContent)

	// Prefer the header over the file name
	description := header[headerDescription]
	if description == "" {
		description = strings.ReplaceAll(name.description, "_", " ")
	}

	return &Migration{
		Version:     name.version,
		Description: description,
		Revision:    header[headerRevision],
		Revises:     header[headerRevises],
		SQL:         sqlContent,
		FilePath:    filePath,
		Checksum:    calculateChecksum(sqlContent),
	}, nil
}

func (s *fileScannerImpl) splitFileName(filename string) fileName {
	matches := s.migrationFilePattern.FindStringSubmatch(filename)
	name := fileName{version: matches[1], description: matches[2]}
	if matches[3] == "down" {
		name.direction = Down
	}
	return name
}

// readSQL loads a migration file and applies content validation.
func (s *fileScannerImpl) readSQL(version, filePath string) (string, error) {
	sqlBytes, err := fs.ReadFile(s.fsys, filePath)
	if err != nil {
		return "", NewFileSystemError(filePath, "read file", err)
	}

	sqlContent := string(sqlBytes)
	if strings.TrimSpace(sqlContent) == "" {
		return "", NewMigrationError(version, filePath, "validate content",
			fmt.Errorf("%w: migration file is empty", ErrInvalidMigrationFile))
	}

	if err := validateSQLSyntax(sqlContent); err != nil {
		return "", NewMigrationError(version, filePath, "validate SQL syntax", err)
	}

	return sqlContent, nil
}

// validateSQLSyntax checks that the content holds at least one statement
// with balanced parentheses, terminated literals and closed comments.
func validateSQLSyntax(sql string) error {
	statements, err := splitStatements(sql)
	if err != nil {
		return err
	}
	if len(statements) == 0 {
		return fmt.Errorf("%w: no SQL statements found after removing comments", ErrInvalidMigrationFile)
	}
	return nil
}

// parseHeader collects "-- Key: value" pairs from the leading comment block.
func parseHeader(content string) map[string]string {
	header := make(map[string]string)

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "--") {
			break
		}

		key, value, ok := strings.Cut(strings.TrimSpace(strings.TrimPrefix(line, "--")), ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if _, seen := header[key]; seen {
			continue
		}
		header[key] = strings.TrimSpace(value)
	}

	return header
}

// calculateChecksum calculates SHA256 checksum of the SQL content
func calculateChecksum(content string) string {
	hash := sha256.Sum256([]byte(content))
	return fmt.Sprintf("%x", hash)
}
