package clients

import (
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/transactionhub/ledger-api/internal/types"
	"github.com/transactionhub/ledger-api/pkg/response"
	"gorm.io/gorm"
)

// Service handles client management for a broker user
type Service struct {
	db *Database
}

// NewService creates a new client service with the given database connection
func NewService(gormDB *gorm.DB) *Service {
	return &Service{
		db: NewDatabase(gormDB),
	}
}

// CreateClientRequest is the client creation payload. Identity fields are
// immutable once created.
type CreateClientRequest struct {
	Name            string `json:"name" binding:"required"`
	Code            string `json:"code"`
	ReferredBy      string `json:"referred_by"`
	IsCompanyClient bool   `json:"is_company_client"`
}

// CreateClient registers a new client owned by the user
func (s *Service) CreateClient(userID string, req CreateClientRequest) (*types.Client, error) {
	client := &types.Client{
		ClientID:        "CLT_" + uuid.New().String(),
		UserID:          userID,
		Name:            req.Name,
		Code:            req.Code,
		ReferredBy:      req.ReferredBy,
		IsCompanyClient: req.IsCompanyClient,
		CreatedAt:       time.Now(),
		UpdatedAt:       time.Now(),
	}

	if err := s.db.CreateClient(client); err != nil {
		return nil, err
	}

	log.Info().
		Str("client_id", client.ClientID).
		Str("service", "clients").
		Msg("client created")
	return client, nil
}

// GetClient retrieves one of the user's clients
func (s *Service) GetClient(userID, clientID string) (*types.Client, error) {
	return s.db.GetClient(userID, clientID)
}

// ListClients retrieves all of the user's clients
func (s *Service) ListClients(userID string) ([]types.Client, error) {
	return s.db.ListClients(userID)
}

// DeleteClient removes a client and cascades to its ledger accounts
func (s *Service) DeleteClient(userID, clientID string) error {
	if err := s.db.DeleteClient(userID, clientID); err != nil {
		return err
	}

	log.Info().
		Str("client_id", clientID).
		Str("service", "clients").
		Msg("client deleted with accounts")
	return nil
}

// GinHandlers contains HTTP handlers for client endpoints
type GinHandlers struct {
	service *Service
}

// NewGinHandlers creates a new set of HTTP handlers for client endpoints
func NewGinHandlers(service *Service) *GinHandlers {
	return &GinHandlers{
		service: service,
	}
}

// CreateClientHandler handles POST requests to create clients
func (h *GinHandlers) CreateClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateClientRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}

		client, err := h.service.CreateClient(c.GetString("user_id"), req)
		response.Handle(c, client, err)
	}
}

// ListClientsHandler handles GET requests for the user's clients
func (h *GinHandlers) ListClientsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		clients, err := h.service.ListClients(c.GetString("user_id"))
		response.Handle(c, clients, err)
	}
}

// GetClientHandler handles GET requests for one client
func (h *GinHandlers) GetClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		client, err := h.service.GetClient(c.GetString("user_id"), c.Param("client_id"))
		if errors.Is(err, ErrClientNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		response.Handle(c, client, err)
	}
}

// DeleteClientHandler handles DELETE requests for a client
func (h *GinHandlers) DeleteClientHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.service.DeleteClient(c.GetString("user_id"), c.Param("client_id"))
		if errors.Is(err, ErrClientNotFound) {
			response.NotFound(c, err.Error())
			return
		}
		if err != nil {
			response.Handle(c, nil, err)
			return
		}
		response.Success(c, gin.H{"message": "client deleted successfully"})
	}
}
