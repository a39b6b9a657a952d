package model

// Session 登录会话持久化记录
//
// 钱包断开时清空 token 列但保留行 (地址用于展示)。
type Session struct {
	ID            int64  `gorm:"primaryKey;autoIncrement" json:"id"`
	WalletAddress string `gorm:"column:wallet_address;type:varchar(64);uniqueIndex;not null" json:"wallet_address"`
	Token         string `gorm:"column:token;type:varchar(512)" json:"token"`
	UserID        string `gorm:"column:user_id;type:varchar(64)" json:"user_id"`
	CreatedAt     int64  `gorm:"column:created_at;type:bigint;not null" json:"created_at"`
	UpdatedAt     int64  `gorm:"column:updated_at;type:bigint;not null" json:"updated_at"`
}

// TableName 表名
func (Session) TableName() string {
	return "trade_sessions"
}
