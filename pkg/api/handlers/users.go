package handlers

import (
	"errors"
	"fmt"
	"log"
	"regexp"

	"github.com/gofiber/fiber/v2"

	"github.com/fio-analyzer/server/pkg/api/middleware"
	"github.com/fio-analyzer/server/pkg/auth"
)

// usernamePattern limits account names to htpasswd-safe characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,50}$`)

// UserHandlers manages the htpasswd-backed accounts. All routes except
// Me are admin-only; the router enforces that.
type UserHandlers struct {
	users *auth.Service
}

// NewUserHandlers creates the user management handlers.
func NewUserHandlers(users *auth.Service) *UserHandlers {
	return &UserHandlers{users: users}
}

type userRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

// List returns every account from both user files.
func (h *UserHandlers) List(c *fiber.Ctx) error {
	return c.JSON(h.users.ListAccounts())
}

// Me reports the caller's own identity.
func (h *UserHandlers) Me(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"username": middleware.GetUsername(c),
		"role":     middleware.GetRole(c),
	})
}

// Create adds an account to the file matching the requested role.
func (h *UserHandlers) Create(c *fiber.Ctx) error {
	var req userRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if !usernamePattern.MatchString(req.Username) {
		return fiber.NewError(fiber.StatusBadRequest, "Username must be 1-50 characters of letters, digits, underscore or dash")
	}
	if err := validatePassword(req.Password); err != nil {
		return err
	}
	role, err := parseRole(req.Role)
	if err != nil {
		return err
	}

	if err := h.users.CreateAccount(req.Username, req.Password, role); err != nil {
		if errors.Is(err, auth.ErrUserExists) {
			return fiber.NewError(fiber.StatusBadRequest, fmt.Sprintf("User '%s' already exists", req.Username))
		}
		log.Printf("[Users] Create %q failed: %v", req.Username, err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to create user")
	}
	return c.JSON(auth.Account{Username: req.Username, Role: role})
}

// Get returns a single account.
func (h *UserHandlers) Get(c *fiber.Ctx) error {
	account, ok := h.users.LookupAccount(c.Params("username"))
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "User not found")
	}
	return c.JSON(account)
}

// Update changes an account's password, role, or both. Empty fields keep
// the current values; changing your own role is rejected.
func (h *UserHandlers) Update(c *fiber.Ctx) error {
	username := c.Params("username")

	var req userRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.Password != "" {
		if err := validatePassword(req.Password); err != nil {
			return err
		}
	}
	var role auth.Role
	if req.Role != "" {
		r, err := parseRole(req.Role)
		if err != nil {
			return err
		}
		role = r
	}

	current, ok := h.users.LookupAccount(username)
	if !ok {
		return fiber.NewError(fiber.StatusNotFound, "User not found")
	}
	if role != "" && role != current.Role && username == middleware.GetUsername(c) {
		return fiber.NewError(fiber.StatusBadRequest, "Cannot change your own role")
	}

	if err := h.users.UpdateAccount(username, req.Password, role); err != nil {
		if errors.Is(err, auth.ErrUserNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "User not found")
		}
		log.Printf("[Users] Update %q failed: %v", username, err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to update user")
	}

	updated, _ := h.users.LookupAccount(username)
	return c.JSON(updated)
}

// Delete removes an account. Self-deletion and removing the last admin
// are rejected.
func (h *UserHandlers) Delete(c *fiber.Ctx) error {
	username := c.Params("username")
	if username == middleware.GetUsername(c) {
		return fiber.NewError(fiber.StatusBadRequest, "Cannot delete your own account")
	}

	if err := h.users.DeleteAccount(username); err != nil {
		switch {
		case errors.Is(err, auth.ErrUserNotFound):
			return fiber.NewError(fiber.StatusNotFound, "User not found")
		case errors.Is(err, auth.ErrLastAdmin):
			return fiber.NewError(fiber.StatusBadRequest, "Cannot delete the last admin user")
		}
		log.Printf("[Users] Delete %q failed: %v", username, err)
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to delete user")
	}
	return c.JSON(fiber.Map{"message": fmt.Sprintf("User '%s' deleted successfully", username)})
}

func validatePassword(password string) error {
	if len(password) < 4 || len(password) > 100 {
		return fiber.NewError(fiber.StatusBadRequest, "Password must be between 4 and 100 characters")
	}
	return nil
}

func parseRole(value string) (auth.Role, error) {
	switch auth.Role(value) {
	case auth.RoleAdmin, auth.RoleUploader:
		return auth.Role(value), nil
	default:
		return "", fiber.NewError(fiber.StatusBadRequest, "Role must be admin or uploader")
	}
}
