// Package clock は営業日基準の時刻プロバイダを提供する。
// 「今日」の意味がデプロイ先リージョンのホスト時計に依存しないよう、
// 固定の営業タイムゾーンを注入された値として扱う。
package clock

import (
	"fmt"
	"time"
)

// BusinessClock は固定タイムゾーンの営業日時刻を提供する。
// nowFnを差し替えることでテストから任意の現在時刻を注入できる。
type BusinessClock struct {
	loc   *time.Location
	nowFn func() time.Time
}

// NewBusinessClock は指定タイムゾーンのBusinessClockを生成する。
// tzは "Asia/Tokyo" のようなIANAタイムゾーン名を指定する。
func NewBusinessClock(tz string) (*BusinessClock, error) {
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("タイムゾーンの読み込みに失敗しました: %w", err)
	}
	return &BusinessClock{loc: loc, nowFn: time.Now}, nil
}

// NewFixedClock は常にfixedを現在時刻として返すBusinessClockを生成する。
// テスト専用。fixedのLocationを営業タイムゾーンとして使用する。
func NewFixedClock(fixed time.Time) *BusinessClock {
	return &BusinessClock{
		loc:   fixed.Location(),
		nowFn: func() time.Time { return fixed },
	}
}

// Now は営業タイムゾーンにおける現在時刻を返す。
func (c *BusinessClock) Now() time.Time {
	return c.nowFn().In(c.loc)
}

// Today は営業日の開始時刻（営業タイムゾーンの0時0分）を返す。
func (c *BusinessClock) Today() time.Time {
	now := c.Now()
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.loc)
}

// EndOfDay はdayの属する営業日の終端（23:59:59.999）を返す。
// 満了判定の評価境界として使用する。
func (c *BusinessClock) EndOfDay(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), 23, 59, 59, 999000000, c.loc)
}

// Location は営業タイムゾーンを返す。
func (c *BusinessClock) Location() *time.Location {
	return c.loc
}
