package gormpersistence

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// mysqlErrDuplicateEntry 是 MySQL 唯一约束冲突的错误码
const mysqlErrDuplicateEntry = 1062

// isDuplicateEntryError 判断是否为唯一约束冲突。
// MySQL 按驱动错误码判断，其他驱动 (测试用的 SQLite) 退回到错误字符串匹配。
func isDuplicateEntryError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlErrDuplicateEntry
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || // SQLite
		strings.Contains(msg, "Duplicate entry") // MySQL
}
