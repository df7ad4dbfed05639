package controller

import (
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"

	"outreachly/services"
	"outreachly/utils"
)

type ContactController struct {
	contacts *services.Contacts
	logger   *logrus.Entry
}

func NewContactController(contacts *services.Contacts, logger *logrus.Entry) *ContactController {
	return &ContactController{contacts: contacts, logger: logger}
}

type createContactRequest struct {
	Name        string `json:"name" validate:"max=255"`
	Email       string `json:"email" validate:"required,email"`
	Role        string `json:"role" validate:"max=255"`
	Company     string `json:"company" validate:"max=255"`
	Website     string `json:"website" validate:"omitempty,url"`
	LinkedInURL string `json:"linkedin_url" validate:"omitempty,url"`
	Source      string `json:"source" validate:"max=50"`
}

func (cc *ContactController) ListContacts(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}
	contacts, err := cc.contacts.List(c.UserContext(), userID, c.Query("status"))
	if err != nil {
		return serviceError(c, cc.logger, err)
	}
	return c.JSON(utils.SuccessResponse(contacts))
}

func (cc *ContactController) CreateContact(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}

	var req createContactRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, ErrInvalidRequestBody)
	}
	if err := utils.ValidateStruct(req); err != nil {
		return badRequest(c, err.Error())
	}

	contact, err := cc.contacts.Create(c.UserContext(), userID, services.ContactInput{
		Name:        req.Name,
		Email:       req.Email,
		Role:        req.Role,
		Company:     req.Company,
		Website:     req.Website,
		LinkedInURL: req.LinkedInURL,
		Source:      req.Source,
	})
	if err != nil {
		return serviceError(c, cc.logger, err)
	}
	return c.Status(fiber.StatusCreated).JSON(utils.SuccessResponse(contact))
}

func (cc *ContactController) DeleteContact(c *fiber.Ctx) error {
	userID, ok := currentUserID(c)
	if !ok {
		return unauthorized(c)
	}
	id := utils.ParseUint(c.Params("id"))
	if id == 0 {
		return badRequest(c, ErrInvalidContactID)
	}
	if err := cc.contacts.Delete(c.UserContext(), userID, id); err != nil {
		return serviceError(c, cc.logger, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
