package integration

import (
	"fmt"
	"time"
)

// TestPassword satisfies the password policy
const TestPassword = "TestPassword123!"

// TestUser generates unique test user credentials using timestamp
func TestUser(suffix string) (email, password string) {
	ts := time.Now().UnixNano()
	email = fmt.Sprintf("test-%d-%s@clinic.test", ts, suffix)
	password = TestPassword
	return
}
