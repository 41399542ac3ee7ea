// Package actions resolves interactive button replies to configured
// behavior: scenario buttons first, then exact button actions, then prefix
// actions carrying an entity id suffix.
package actions

import (
	"fmt"
	"log"
	"strings"

	"erp-whatsapp-bridge/internal/models"
	"erp-whatsapp-bridge/internal/sender"
	"erp-whatsapp-bridge/internal/store"
	"erp-whatsapp-bridge/internal/whatsapp"
)

// ActionResult reports what a dispatched action did, for the message
// annotation and the API response.
type ActionResult struct {
	Success bool
	Message string
}

// HandlerFunc is a named action implementation registered at startup.
// Handlers are the only way to attach code to a button: action rows
// reference them by name and can never inject code of their own.
type HandlerFunc func(msg *models.Message, contact *models.Contact, buttonID string) ActionResult

type Dispatcher struct {
	store    *store.Store
	sender   *sender.Sender
	handlers map[string]HandlerFunc
}

func NewDispatcher(st *store.Store, snd *sender.Sender) *Dispatcher {
	return &Dispatcher{
		store:    st,
		sender:   snd,
		handlers: make(map[string]HandlerFunc),
	}
}

// RegisterHandler binds a handler name to its implementation. Later
// registrations with the same name win, which lets tests stub built-ins.
func (d *Dispatcher) RegisterHandler(name string, fn HandlerFunc) {
	d.handlers[name] = fn
}

// Dispatch resolves one button reply. Resolution order: scenario button with
// the exact id, then active button action with the exact id, then active
// button action whose id is a prefix of the reply (id + "_" + suffix). When
// nothing matches the reply is annotated and left alone.
func (d *Dispatcher) Dispatch(buttonID string, msg *models.Message, contact *models.Contact) ActionResult {
	if buttonID == "" {
		return ActionResult{Success: false, Message: "empty button id"}
	}

	if result, handled := d.dispatchScenario(buttonID, msg); handled {
		return result
	}

	actions, err := d.store.ActiveButtonActions()
	if err != nil {
		log.Printf("Error loading button actions: %v", err)
		return ActionResult{Success: false, Message: "could not load button actions"}
	}

	for _, action := range actions {
		if action.ButtonID == buttonID {
			return d.execute(&action, buttonID, msg, contact)
		}
	}
	for _, action := range actions {
		if strings.HasPrefix(buttonID, action.ButtonID+"_") {
			return d.execute(&action, buttonID, msg, contact)
		}
	}

	d.annotate(msg, buttonID, "no action configured")
	return ActionResult{Success: true, Message: "no action configured for " + buttonID}
}

func (d *Dispatcher) dispatchScenario(buttonID string, msg *models.Message) (ActionResult, bool) {
	scenarios, err := d.store.ActiveScenarios()
	if err != nil {
		log.Printf("Error loading scenarios: %v", err)
		return ActionResult{}, false
	}

	for _, scenario := range scenarios {
		for _, button := range scenario.Buttons {
			if button.ButtonID != buttonID {
				continue
			}

			if button.Response != "" {
				if _, err := d.sender.SendText(msg.Phone, button.Response, false); err != nil {
					log.Printf("Error sending scenario response for %s: %v", buttonID, err)
					return ActionResult{Success: false, Message: "scenario response failed: " + err.Error()}, true
				}
			}
			if button.NextScenarioID != nil {
				if err := d.SendScenario(*button.NextScenarioID, msg.Phone); err != nil {
					log.Printf("Error chaining scenario %d: %v", *button.NextScenarioID, err)
					return ActionResult{Success: false, Message: "scenario chaining failed: " + err.Error()}, true
				}
			}
			d.annotate(msg, buttonID, fmt.Sprintf("scenario %q", scenario.Name))
			return ActionResult{Success: true, Message: "scenario " + scenario.Name}, true
		}
	}
	return ActionResult{}, false
}

// SendScenario sends a scenario's initial interactive message to a phone
// number. Scenarios carry at most three buttons; extra rows are ignored.
func (d *Dispatcher) SendScenario(scenarioID uint, phone string) error {
	scenario, err := d.store.GetScenario(scenarioID)
	if err != nil {
		return fmt.Errorf("loading scenario %d: %w", scenarioID, err)
	}
	if len(scenario.Buttons) == 0 {
		_, err := d.sender.SendText(phone, scenario.InitialMessage, false)
		return err
	}

	buttons := make([]whatsapp.ButtonObj, 0, 3)
	for _, b := range scenario.Buttons {
		if len(buttons) == 3 {
			break
		}
		buttons = append(buttons, whatsapp.ButtonObj{
			Type:  "reply",
			Reply: whatsapp.ReplyObj{ID: b.ButtonID, Title: b.Title},
		})
	}
	_, err = d.sender.SendInteractive(phone, scenario.InitialMessage, buttons)
	return err
}

func (d *Dispatcher) execute(action *models.ButtonAction, buttonID string, msg *models.Message, contact *models.Contact) ActionResult {
	var result ActionResult

	switch action.ActionType {
	case models.ActionSendMessage:
		if action.MessageToSend == "" {
			result = ActionResult{Success: false, Message: "action has no message configured"}
			break
		}
		if _, err := d.sender.SendText(msg.Phone, action.MessageToSend, false); err != nil {
			result = ActionResult{Success: false, Message: "send failed: " + err.Error()}
			break
		}
		result = ActionResult{Success: true, Message: "reply sent"}

	case models.ActionUpdateContact:
		if contact == nil {
			result = ActionResult{Success: false, Message: "no contact to update"}
			break
		}
		if err := d.store.UpdateContactField(contact.ID, action.ContactField, action.ContactValue); err != nil {
			result = ActionResult{Success: false, Message: "contact update failed: " + err.Error()}
			break
		}
		result = ActionResult{Success: true, Message: fmt.Sprintf("contact %s updated", action.ContactField)}

	case models.ActionCreateTicket:
		ticket := models.Ticket{
			Name:        fmt.Sprintf("WhatsApp: %s", action.Name),
			Phone:       msg.Phone,
			Description: msg.Content,
		}
		if contact != nil {
			ticket.ContactID = &contact.ID
		}
		if err := d.store.DB().Create(&ticket).Error; err != nil {
			result = ActionResult{Success: false, Message: "ticket creation failed: " + err.Error()}
			break
		}
		result = ActionResult{Success: true, Message: fmt.Sprintf("ticket #%d created", ticket.ID)}

	case models.ActionHandler:
		fn, ok := d.handlers[action.HandlerName]
		if !ok {
			result = ActionResult{Success: false, Message: fmt.Sprintf("no handler registered as %q", action.HandlerName)}
			break
		}
		result = fn(msg, contact, buttonID)

	default:
		result = ActionResult{Success: false, Message: fmt.Sprintf("unknown action type %q", action.ActionType)}
	}

	d.annotate(msg, buttonID, result.Message)
	return result
}

func (d *Dispatcher) annotate(msg *models.Message, buttonID, note string) {
	if msg == nil {
		return
	}
	msg.Content = strings.TrimSpace(fmt.Sprintf("%s\n[Button: %s] %s", msg.Content, buttonID, note))
	if err := d.store.SaveMessage(msg); err != nil {
		log.Printf("Error annotating message %d: %v", msg.ID, err)
	}
}
