package models

import (
	"time"

	"golang.org/x/crypto/bcrypt"
)

// Player 계정. 레이팅은 player_skills 에 따로 저장
type Player struct {
	ID           string    `json:"id" db:"id"`
	Username     string    `json:"username" db:"username"`
	DisplayName  string    `json:"displayName" db:"display_name"`
	PasswordHash string    `json:"-" db:"password_hash"` // JSON에서 숨김
	Ban          *Ban      `json:"ban,omitempty"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
}

// HashPassword 비밀번호 해싱
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPassword 비밀번호 검증
func (p *Player) CheckPassword(password string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(p.PasswordHash), []byte(password))
	return err == nil
}
