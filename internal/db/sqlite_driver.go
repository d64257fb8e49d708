package db

import (
	"database/sql"
	"fmt"
	"regexp"
	"strings"
	"sync"

	sqlite3 "github.com/mutecomm/go-sqlcipher/v4"
)

const (
	// SQLiteDriverName is the project-specific SQLCipher driver with custom SQL functions.
	SQLiteDriverName = "sqlite3_notefold"

	// maxCachedPatterns bounds the compiled REGEXP cache.
	maxCachedPatterns = 256
)

func init() {
	sql.Register(SQLiteDriverName, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			// SQLite rewrites "X REGEXP Y" to regexp(Y, X).
			if err := conn.RegisterFunc("regexp", sqliteRegexp, true); err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "already exists") {
					return nil
				}
				return fmt.Errorf("register regexp SQL function: %w", err)
			}
			return nil
		},
	})
}

var patternCache = struct {
	sync.Mutex
	m map[string]*regexp.Regexp
}{m: make(map[string]*regexp.Regexp)}

func compilePattern(pattern string) (*regexp.Regexp, error) {
	patternCache.Lock()
	defer patternCache.Unlock()

	if re, ok := patternCache.m[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	if len(patternCache.m) >= maxCachedPatterns {
		patternCache.m = make(map[string]*regexp.Regexp)
	}
	patternCache.m[pattern] = re
	return re, nil
}

func sqliteRegexp(pattern string, value any) (bool, error) {
	re, err := compilePattern(pattern)
	if err != nil {
		return false, fmt.Errorf("invalid regexp %q: %w", pattern, err)
	}
	switch v := value.(type) {
	case nil:
		return false, nil
	case string:
		return re.MatchString(v), nil
	case []byte:
		return re.Match(v), nil
	default:
		return re.MatchString(fmt.Sprint(v)), nil
	}
}

// CaseInsensitiveLiteral returns a REGEXP pattern matching s literally,
// ignoring case.
func CaseInsensitiveLiteral(s string) string {
	return "(?i)" + regexp.QuoteMeta(s)
}
