package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func setAuthTestConfig() {
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("argon2.salt_length", 16)
}

func TestPasswordHashing(t *testing.T) {
	setAuthTestConfig()

	t.Run("hash and verify roundtrip", func(t *testing.T) {
		hashed, err := hashPassword("correct-horse-battery")
		assert.NoError(t, err)
		assert.NotEqual(t, "correct-horse-battery", hashed)
		assert.True(t, verifyPassword("correct-horse-battery", hashed))
	})

	t.Run("wrong password fails verification", func(t *testing.T) {
		hashed, err := hashPassword("correct-horse-battery")
		assert.NoError(t, err)
		assert.False(t, verifyPassword("wrong-password", hashed))
	})

	t.Run("same password hashes differently per salt", func(t *testing.T) {
		first, _ := hashPassword("password123")
		second, _ := hashPassword("password123")
		assert.NotEqual(t, first, second)
	})

	t.Run("malformed stored hash fails closed", func(t *testing.T) {
		assert.False(t, verifyPassword("anything", "not-a-valid-hash"))
	})
}

func TestGenerateJWT(t *testing.T) {
	setAuthTestConfig()

	tokenString, err := generateJWT(42, "admin")
	assert.NoError(t, err)

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	assert.NoError(t, err)
	assert.True(t, token.Valid)

	claims := token.Claims.(jwt.MapClaims)
	assert.Equal(t, float64(42), claims["user_id"])
	assert.Equal(t, "admin", claims["role"])
	assert.Greater(t, claims["exp"].(float64), float64(time.Now().Unix()))
}

func TestAuthService_Login(t *testing.T) {
	setAuthTestConfig()

	db, dbMock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewAuthService(db, nil)

	t.Run("successful login returns token and role", func(t *testing.T) {
		hashed, _ := hashPassword("password123")
		dbMock.ExpectQuery("SELECT id, email, password, role, created_at FROM users WHERE email").
			WithArgs("user@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password", "role", "created_at"}).
				AddRow(1, "user@example.com", hashed, "user", time.Now()))

		body := `{"email":"user@example.com","password":"password123"}`
		rec := httptest.NewRecorder()
		service.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))

		assert.Equal(t, http.StatusOK, rec.Code)
		var resp AuthResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.NotEmpty(t, resp.Token)
		assert.Equal(t, "user@example.com", resp.User.Email)
		assert.NoError(t, dbMock.ExpectationsWereMet())
	})

	t.Run("wrong password is rejected", func(t *testing.T) {
		hashed, _ := hashPassword("password123")
		dbMock.ExpectQuery("SELECT id, email, password, role, created_at FROM users WHERE email").
			WithArgs("user@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password", "role", "created_at"}).
				AddRow(1, "user@example.com", hashed, "user", time.Now()))

		body := `{"email":"user@example.com","password":"nope-nope"}`
		rec := httptest.NewRecorder()
		service.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown email is rejected", func(t *testing.T) {
		dbMock.ExpectQuery("SELECT id, email, password, role, created_at FROM users WHERE email").
			WithArgs("ghost@example.com").
			WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password", "role", "created_at"}))

		body := `{"email":"ghost@example.com","password":"password123"}`
		rec := httptest.NewRecorder()
		service.Login(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthService_Logout(t *testing.T) {
	setAuthTestConfig()

	redisClient, redisMock := redismock.NewClientMock()
	service := NewAuthService(nil, redisClient)

	redisMock.ExpectSet("blacklist:sometoken", "1", 24*time.Hour).SetVal("OK")

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer sometoken")
	rec := httptest.NewRecorder()
	service.Logout(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}
