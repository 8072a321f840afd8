package admin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"Membership-Telegram-bot/internal/db"
	"Membership-Telegram-bot/internal/logger"
)

type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

type Store interface {
	CreateGroup(ctx context.Context, chatID, adminID string, cost decimal.Decimal) (*db.Group, error)
	GetGroup(ctx context.Context, chatID string) (*db.Group, error)
	ListAdminGroups(ctx context.Context, adminID string) ([]db.Group, error)
	UpdateGroupCost(ctx context.Context, chatID string, cost decimal.Decimal) error
	UpdateGroupSettings(ctx context.Context, chatID string, settings db.GroupSettings) error
	CountActiveMembers(ctx context.Context, groupChatID string) (int64, error)
	ListActiveMembers(ctx context.Context, groupChatID string) ([]db.Member, error)
	Stats(ctx context.Context) (db.Stats, error)
}

// Handler команды администраторов групп и владельца бота
type Handler struct {
	api     API
	store   Store
	backups *Backuper
	ownerID int64
	log     *zap.Logger
}

func NewHandler(api API, store Store, backups *Backuper, ownerID int64, log *zap.Logger) *Handler {
	return &Handler{api: api, store: store, backups: backups, ownerID: ownerID, log: log}
}

func (h *Handler) IsOwner(userID int64) bool {
	return h.ownerID != 0 && userID == h.ownerID
}

// Handle выполняет админскую команду; false, если команда не отсюда
func (h *Handler) Handle(ctx context.Context, msg *tgbotapi.Message) bool {
	if msg == nil || msg.From == nil {
		return false
	}
	cmd := msg.Command()
	switch cmd {
	case "addgroup":
		h.handleAddGroup(ctx, msg)
	case "setcost":
		h.handleSetCost(ctx, msg)
	case "setwelcome":
		h.handleSetText(ctx, msg, func(s *db.GroupSettings, v string) { s.WelcomeMessage = v })
	case "setrules":
		h.handleSetText(ctx, msg, func(s *db.GroupSettings, v string) { s.Rules = v })
	case "autokick":
		h.handleAutoKick(ctx, msg)
	case "mygroups":
		h.handleMyGroups(ctx, msg)
	case "members":
		h.handleMembers(ctx, msg)
	case "admin_stats", "admin_backup", "admin_restore":
		if !h.IsOwner(msg.From.ID) {
			return false
		}
		switch cmd {
		case "admin_stats":
			h.handleStats(ctx, msg)
		case "admin_backup":
			h.handleBackup(ctx, msg)
		case "admin_restore":
			h.handleRestore(ctx, msg)
		}
	default:
		return false
	}
	logger.LogAdminAction(h.log, msg.From.ID, cmd, msg.CommandArguments())
	return true
}

func (h *Handler) reply(msg *tgbotapi.Message, text string) {
	if _, err := h.api.Send(tgbotapi.NewMessage(msg.Chat.ID, text)); err != nil {
		h.log.Warn("admin reply failed", zap.Int64("chat_id", msg.Chat.ID), zap.Error(err))
	}
}

func parseCost(s string) (decimal.Decimal, error) {
	cost, err := decimal.NewFromString(s)
	if err != nil || !cost.IsPositive() {
		return decimal.Zero, errors.New("cost must be a positive number")
	}
	return cost.Round(2), nil
}

// isChatAdmin спрашивает у Telegram список администраторов группы.
// Ошибка означает, что бот не состоит в группе или не видит её.
func (h *Handler) isChatAdmin(groupChatID string, userID int64) (bool, error) {
	id, err := strconv.ParseInt(groupChatID, 10, 64)
	if err != nil {
		return false, err
	}
	resp, err := h.api.Request(tgbotapi.ChatAdministratorsConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: id}})
	if err != nil {
		return false, err
	}
	var members []tgbotapi.ChatMember
	if err := json.Unmarshal(resp.Result, &members); err != nil {
		return false, err
	}
	for _, m := range members {
		if m.User != nil && m.User.ID == userID {
			return true, nil
		}
	}
	return false, nil
}

// ownedGroup группа, если отправитель её админ; иначе отвечает сам и возвращает nil
func (h *Handler) ownedGroup(ctx context.Context, msg *tgbotapi.Message, groupChatID string) *db.Group {
	group, err := h.store.GetGroup(ctx, groupChatID)
	if errors.Is(err, db.ErrNotFound) {
		h.reply(msg, "Group not found.")
		return nil
	}
	if err != nil {
		h.log.Error("get group failed", zap.String("group_chat_id", groupChatID), zap.Error(err))
		h.reply(msg, "Could not load the group. Please try again later.")
		return nil
	}
	if group.AdminID != strconv.FormatInt(msg.From.ID, 10) {
		h.reply(msg, "You are not the admin of this group.")
		return nil
	}
	return group
}

func (h *Handler) handleAddGroup(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		h.reply(msg, "Usage: /addgroup <group_id> <cost>")
		return
	}
	cost, err := parseCost(args[1])
	if err != nil {
		h.reply(msg, "Usage: /addgroup <group_id> <cost>\n"+err.Error())
		return
	}
	ok, err := h.isChatAdmin(args[0], msg.From.ID)
	if err != nil {
		h.log.Info("group admin check failed", zap.String("group_chat_id", args[0]), zap.Error(err))
		h.reply(msg, "I cannot see that group. Add me to the group as an admin and try again.")
		return
	}
	if !ok {
		h.reply(msg, "You are not an admin of that group.")
		return
	}

	group, err := h.store.CreateGroup(ctx, args[0], strconv.FormatInt(msg.From.ID, 10), cost)
	if errors.Is(err, db.ErrAlreadyExists) {
		h.reply(msg, "This group is already registered.")
		return
	}
	if err != nil {
		h.log.Error("create group failed", zap.String("group_chat_id", args[0]), zap.Error(err))
		h.reply(msg, "Could not register the group. Please try again later.")
		return
	}
	h.reply(msg, fmt.Sprintf("Group %s registered. Membership costs $%s. Users can buy access with /join %s",
		group.ChatID, group.Cost.StringFixed(2), group.ChatID))
}

func (h *Handler) handleSetCost(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		h.reply(msg, "Usage: /setcost <group_id> <cost>")
		return
	}
	cost, err := parseCost(args[1])
	if err != nil {
		h.reply(msg, err.Error())
		return
	}
	if h.ownedGroup(ctx, msg, args[0]) == nil {
		return
	}
	if err := h.store.UpdateGroupCost(ctx, args[0], cost); err != nil {
		h.log.Error("update cost failed", zap.String("group_chat_id", args[0]), zap.Error(err))
		h.reply(msg, "Could not update the cost.")
		return
	}
	h.reply(msg, fmt.Sprintf("Cost of group %s set to $%s.", args[0], cost.StringFixed(2)))
}

// handleSetText /setwelcome и /setrules: <group_id> <текст до конца строки>
func (h *Handler) handleSetText(ctx context.Context, msg *tgbotapi.Message, apply func(*db.GroupSettings, string)) {
	groupChatID, text, _ := strings.Cut(strings.TrimSpace(msg.CommandArguments()), " ")
	text = strings.TrimSpace(text)
	if groupChatID == "" {
		h.reply(msg, fmt.Sprintf("Usage: /%s <group_id> <text>", msg.Command()))
		return
	}
	group := h.ownedGroup(ctx, msg, groupChatID)
	if group == nil {
		return
	}
	settings := group.Settings
	apply(&settings, text)
	if err := h.store.UpdateGroupSettings(ctx, groupChatID, settings); err != nil {
		h.log.Error("update settings failed", zap.String("group_chat_id", groupChatID), zap.Error(err))
		h.reply(msg, "Could not update the group settings.")
		return
	}
	if text == "" {
		h.reply(msg, "Cleared.")
		return
	}
	h.reply(msg, "Saved.")
}

func (h *Handler) handleAutoKick(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 || (args[1] != "on" && args[1] != "off") {
		h.reply(msg, "Usage: /autokick <group_id> on|off")
		return
	}
	group := h.ownedGroup(ctx, msg, args[0])
	if group == nil {
		return
	}
	settings := group.Settings
	settings.AutoKick = args[1] == "on"
	if err := h.store.UpdateGroupSettings(ctx, args[0], settings); err != nil {
		h.log.Error("update settings failed", zap.String("group_chat_id", args[0]), zap.Error(err))
		h.reply(msg, "Could not update the group settings.")
		return
	}
	h.reply(msg, fmt.Sprintf("Auto-kick for group %s is %s.", args[0], args[1]))
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func (h *Handler) handleMyGroups(ctx context.Context, msg *tgbotapi.Message) {
	groups, err := h.store.ListAdminGroups(ctx, strconv.FormatInt(msg.From.ID, 10))
	if err != nil {
		h.log.Error("list admin groups failed", zap.Int64("admin_id", msg.From.ID), zap.Error(err))
		h.reply(msg, "Could not load your groups.")
		return
	}
	if len(groups) == 0 {
		h.reply(msg, "You have no registered groups. Use /addgroup <group_id> <cost>.")
		return
	}
	var sb strings.Builder
	sb.WriteString("Your groups:")
	for _, g := range groups {
		count, err := h.store.CountActiveMembers(ctx, g.ChatID)
		if err != nil {
			h.log.Warn("count members failed", zap.String("group_chat_id", g.ChatID), zap.Error(err))
		}
		fmt.Fprintf(&sb, "\n%s: cost $%s, profit $%s, active members %d, auto-kick %s",
			g.ChatID, g.Cost.StringFixed(2), g.Profit.StringFixed(2), count, onOff(g.Settings.AutoKick))
	}
	h.reply(msg, sb.String())
}

// handleMembers активные участники группы, ближайшие к окончанию первыми
func (h *Handler) handleMembers(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 1 {
		h.reply(msg, "Usage: /members <group_id>")
		return
	}
	if h.ownedGroup(ctx, msg, args[0]) == nil {
		return
	}
	members, err := h.store.ListActiveMembers(ctx, args[0])
	if err != nil {
		h.log.Error("list members failed", zap.String("group_chat_id", args[0]), zap.Error(err))
		h.reply(msg, "Could not load the members.")
		return
	}
	if len(members) == 0 {
		h.reply(msg, "No active members in group "+args[0]+".")
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Active members of %s: %d", args[0], len(members))
	for _, m := range members {
		fmt.Fprintf(&sb, "\n%s until %s UTC", m.ChatID, m.Expiry.UTC().Format("2006-01-02 15:04"))
	}
	h.reply(msg, sb.String())
}

func (h *Handler) handleStats(ctx context.Context, msg *tgbotapi.Message) {
	st, err := h.store.Stats(ctx)
	if err != nil {
		h.log.Error("stats failed", zap.Error(err))
		h.reply(msg, "Could not load stats: "+err.Error())
		return
	}
	h.reply(msg, fmt.Sprintf("Users: %d\nGroups: %d\nActive members: %d\nTotal credited: $%s",
		st.Users, st.Groups, st.ActiveMembers, st.Credited.StringFixed(2)))
}

func (h *Handler) handleBackup(ctx context.Context, msg *tgbotapi.Message) {
	filename, err := h.backups.Backup(ctx, "backup")
	if err != nil {
		h.log.Error("manual backup failed", zap.Error(err))
		h.reply(msg, "Backup failed: "+err.Error())
		return
	}
	doc := tgbotapi.NewDocument(msg.Chat.ID, tgbotapi.FilePath(filename))
	doc.Caption = "Database backup created"
	if _, err := h.api.Send(doc); err != nil {
		h.log.Error("backup upload failed", zap.String("file", filename), zap.Error(err))
		h.reply(msg, "Backup created but could not be sent: "+err.Error())
		return
	}
	_ = os.Remove(filename)
}

func (h *Handler) handleRestore(ctx context.Context, msg *tgbotapi.Message) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 1 {
		h.reply(msg, "Usage: /admin_restore <file name in backups/>")
		return
	}
	if err := h.backups.Restore(ctx, args[0]); err != nil {
		h.log.Error("restore failed", zap.String("file", args[0]), zap.Error(err))
		h.reply(msg, "Restore failed: "+err.Error())
		return
	}
	h.reply(msg, "Database restored from "+args[0])
}
