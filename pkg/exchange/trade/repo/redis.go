package repo

import (
	"strconv"

	configPkg "github.com/KeynihAV/tradecore/pkg/config"
	"github.com/gomodule/redigo/redis"
)

// RetryDB counts processing attempts per trade so a poison message can be
// moved to the dead letter queue instead of being redelivered forever.
type RetryDB struct {
	Conn redis.Conn
}

const attemptsTTLSeconds = 24 * 60 * 60

func NewRetryDB(config *configPkg.Config) (*RetryDB, error) {
	redisConn, err := redis.DialURL(config.Redis.Addr)
	if err != nil {
		return nil, err
	}

	return &RetryDB{
		Conn: redisConn,
	}, nil
}

func (rd *RetryDB) Incr(tradeID int64) (int, error) {
	mkey := "trade_attempts_" + strconv.FormatInt(tradeID, 10)
	attempts, err := redis.Int(rd.Conn.Do("INCR", mkey))
	if err != nil {
		return 0, err
	}
	_, err = rd.Conn.Do("EXPIRE", mkey, attemptsTTLSeconds)
	if err != nil {
		return 0, err
	}

	return attempts, nil
}

func (rd *RetryDB) Clear(tradeID int64) error {
	mkey := "trade_attempts_" + strconv.FormatInt(tradeID, 10)
	_, err := rd.Conn.Do("DEL", mkey)
	if err != nil {
		return err
	}

	return nil
}
