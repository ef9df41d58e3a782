package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"tg-importance-bot/internal/adapters/telegram"
	"tg-importance-bot/internal/domain"
	"tg-importance-bot/internal/infra/metrics"
	"tg-importance-bot/internal/usecase/access"
	"tg-importance-bot/internal/usecase/criteria"
	"tg-importance-bot/internal/usecase/moderation"
	"tg-importance-bot/internal/usecase/pipeline"
	"tg-importance-bot/internal/usecase/subscriptions"
)

// API — часть клиента Bot API, которой пользуется обработчик.
type API interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Submitter принимает посты, отправленные пользователями вручную.
type Submitter interface {
	SubmitManual(ctx context.Context, userID int64, text string) (pipeline.Result, error)
}

const pendingListLimit = 10

// Handler обслуживает вебхук бота: команды подписчиков, авторов и администраторов.
type Handler struct {
	bot           API
	log           zerolog.Logger
	access        *access.Service
	subscriptions *subscriptions.Service
	criteria      *criteria.Store
	moderation    *moderation.Service
	submitter     Submitter
}

// NewHandler создаёт обработчик.
func NewHandler(bot API, log zerolog.Logger, accessUC *access.Service, subsUC *subscriptions.Service, criteriaStore *criteria.Store, moderationUC *moderation.Service, submitter Submitter) *Handler {
	return &Handler{
		bot:           bot,
		log:           log,
		access:        accessUC,
		subscriptions: subsUC,
		criteria:      criteriaStore,
		moderation:    moderationUC,
		submitter:     submitter,
	}
}

// HandleUpdate обрабатывает входящий апдейт.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil {
		h.handleMessage(ctx, upd.Message)
	} else if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	}
}

// ParseCommand выделяет из текста команду без имени бота и аргументы.
// Для текста без ведущего «/» возвращает пустую команду.
func ParseCommand(text string) (string, string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, args, _ := strings.Cut(text, " ")
	if nl := strings.IndexByte(cmd, '\n'); nl >= 0 {
		args = cmd[nl+1:] + " " + args
		cmd = cmd[:nl]
	}
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(strings.TrimPrefix(cmd, "/")), strings.TrimSpace(args)
}

func (h *Handler) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		h.reply(msg.Chat.ID, "Не удалось определить пользователя", nil)
		return
	}
	chatID, userID := msg.Chat.ID, msg.From.ID
	cmd, args := ParseCommand(msg.Text)
	switch cmd {
	case "start":
		h.reply(chatID, h.buildStartMessage(userID), nil)
	case "help":
		h.reply(chatID, h.buildHelpMessage(userID), nil)
	case "monitor":
		h.handleMonitor(ctx, chatID, userID, args, true)
	case "unmonitor":
		h.handleMonitor(ctx, chatID, userID, args, false)
	case "sources":
		h.handleSources(chatID, userID)
	case "threshold":
		h.handleThreshold(ctx, chatID, userID, args)
	case "keyword", "unkeyword", "exclude", "unexclude":
		h.handleKeywords(ctx, chatID, userID, cmd, args)
	case "submit":
		h.handleSubmit(ctx, chatID, userID, args)
	case "pending":
		h.handlePending(ctx, chatID, userID)
	case "criteria":
		h.handleCriteria(chatID, userID)
	case "set":
		h.handleSet(ctx, chatID, userID, args)
	case "approve":
		id, _ := splitFirst(args)
		h.handleDecision(ctx, chatID, userID, id, domain.VerdictApprove, "")
	case "reject":
		id, reason := splitFirst(args)
		h.handleDecision(ctx, chatID, userID, id, domain.VerdictReject, reason)
	case "stuck":
		h.handleStuck(ctx, chatID, userID)
	case "retry":
		h.handleRetry(ctx, chatID, userID, args)
	case "purge":
		h.handlePurge(ctx, chatID, userID, args)
	case "grant":
		h.handleRole(ctx, chatID, userID, args, true)
	case "revoke":
		h.handleRole(ctx, chatID, userID, args, false)
	case "":
		h.reply(chatID, "Отправьте команду. Список команд: /help", nil)
	default:
		h.reply(chatID, "Неизвестная команда. Используйте /help", nil)
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	chatID, userID := cb.Message.Chat.ID, cb.From.ID
	answer := ""
	switch data := cb.Data; {
	case strings.HasPrefix(data, telegram.CallbackApprove):
		answer = h.handleDecision(ctx, chatID, userID, strings.TrimPrefix(data, telegram.CallbackApprove), domain.VerdictApprove, "")
	case strings.HasPrefix(data, telegram.CallbackReject):
		answer = h.handleDecision(ctx, chatID, userID, strings.TrimPrefix(data, telegram.CallbackReject), domain.VerdictReject, "")
	}
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, answer))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(userID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) handleMonitor(ctx context.Context, chatID, userID int64, source string, monitor bool) {
	if !h.allowed(chatID, userID, domain.CapSubscribe) {
		return
	}
	if source == "" {
		h.reply(chatID, "Отправьте /monitor @alias, ссылку t.me или числовой ID источника", nil)
		return
	}
	var (
		sub domain.SubscriberCriteria
		err error
	)
	if monitor {
		sub, err = h.subscriptions.Monitor(ctx, userID, source)
	} else {
		sub, err = h.subscriptions.Unmonitor(ctx, userID, source)
	}
	if err != nil {
		switch {
		case errors.Is(err, subscriptions.ErrSourceInvalid):
			h.reply(chatID, "Некорректный источник. Используйте @alias, ссылку t.me или числовой ID", nil)
		case errors.Is(err, subscriptions.ErrSourceLimit):
			h.reply(chatID, "Достигнут лимит отслеживаемых источников", nil)
		case errors.Is(err, subscriptions.ErrNotMonitored):
			h.reply(chatID, "Этот источник не отслеживается", nil)
		default:
			h.log.Error().Err(err).Int64("user", userID).Msg("bot: update sources failed")
			h.reply(chatID, "Не удалось сохранить настройки, попробуйте позже", nil)
		}
		return
	}
	action := "Источник добавлен"
	if !monitor {
		action = "Источник удалён"
	}
	h.reply(chatID, fmt.Sprintf("%s. Отслеживается источников: %d", action, len(sub.Sources)), nil)
}

func (h *Handler) handleSources(chatID, userID int64) {
	if !h.allowed(chatID, userID, domain.CapSubscribe) {
		return
	}
	sub := h.subscriptions.Get(userID)
	if len(sub.Sources) == 0 {
		h.reply(chatID, "Вы пока не отслеживаете источники. Добавьте: /monitor @alias", nil)
		return
	}
	var b strings.Builder
	b.WriteString("Отслеживаемые источники:\n")
	for _, src := range sub.Sources {
		b.WriteString("• " + src + "\n")
	}
	fmt.Fprintf(&b, "\nПорог важности: %.2f", sub.Threshold)
	if len(sub.Keywords) > 0 {
		b.WriteString("\nКлючевые слова: " + strings.Join(sub.Keywords, ", "))
	}
	if len(sub.ExcludeKeywords) > 0 {
		b.WriteString("\nИсключения: " + strings.Join(sub.ExcludeKeywords, ", "))
	}
	h.reply(chatID, b.String(), nil)
}

func (h *Handler) handleThreshold(ctx context.Context, chatID, userID int64, value string) {
	if !h.allowed(chatID, userID, domain.CapSubscribe) {
		return
	}
	threshold, err := strconv.ParseFloat(strings.ReplaceAll(value, ",", "."), 64)
	if err != nil {
		h.reply(chatID, "Отправьте /threshold 0.6 — число от 0 до 1", nil)
		return
	}
	sub, err := h.subscriptions.SetThreshold(ctx, userID, threshold)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOption) {
			h.reply(chatID, "Порог должен быть числом от 0 до 1", nil)
			return
		}
		h.log.Error().Err(err).Int64("user", userID).Msg("bot: set threshold failed")
		h.reply(chatID, "Не удалось сохранить порог, попробуйте позже", nil)
		return
	}
	h.reply(chatID, fmt.Sprintf("Порог важности: %.2f", sub.Threshold), nil)
}

func (h *Handler) handleKeywords(ctx context.Context, chatID, userID int64, cmd, args string) {
	if !h.allowed(chatID, userID, domain.CapSubscribe) {
		return
	}
	words := ParseList(args)
	if len(words) == 0 {
		h.reply(chatID, fmt.Sprintf("Отправьте /%s слово или несколько слов через запятую", cmd), nil)
		return
	}
	var (
		sub domain.SubscriberCriteria
		err error
	)
	switch cmd {
	case "keyword":
		sub, err = h.subscriptions.AddKeywords(ctx, userID, words)
	case "unkeyword":
		sub, err = h.subscriptions.RemoveKeywords(ctx, userID, words)
	case "exclude":
		sub, err = h.subscriptions.AddExcludes(ctx, userID, words)
	case "unexclude":
		sub, err = h.subscriptions.RemoveExcludes(ctx, userID, words)
	}
	if err != nil {
		h.log.Error().Err(err).Int64("user", userID).Str("command", cmd).Msg("bot: update keywords failed")
		h.reply(chatID, "Не удалось сохранить ключевые слова, попробуйте позже", nil)
		return
	}
	h.reply(chatID, fmt.Sprintf("Ключевые слова: %s\nИсключения: %s", listOrDash(sub.Keywords), listOrDash(sub.ExcludeKeywords)), nil)
}

func (h *Handler) handleSubmit(ctx context.Context, chatID, userID int64, text string) {
	if !h.allowed(chatID, userID, domain.CapSubmit) {
		return
	}
	if text == "" {
		h.reply(chatID, "Отправьте /submit и текст поста", nil)
		return
	}
	res, err := h.submitter.SubmitManual(ctx, userID, text)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidMessage) {
			c := h.criteria.Snapshot()
			h.reply(chatID, fmt.Sprintf("Длина поста должна быть от %d до %d символов", c.MinMessageLength, c.MaxMessageLength), nil)
			return
		}
		h.log.Error().Err(err).Int64("user", userID).Msg("bot: manual submission failed")
		h.reply(chatID, "Не удалось отправить пост, попробуйте позже", nil)
		return
	}
	switch res.Post.State {
	case domain.PostStatePublished:
		h.reply(chatID, "Пост опубликован в канале", nil)
	case domain.PostStateApproved:
		h.reply(chatID, "Пост одобрен, публикация будет повторена автоматически", nil)
	default:
		h.reply(chatID, fmt.Sprintf("Пост %s отправлен на модерацию. Мы сообщим о решении", res.Post.ID), nil)
	}
}

func (h *Handler) handlePending(ctx context.Context, chatID, userID int64) {
	if !h.allowed(chatID, userID, domain.CapModerate) {
		return
	}
	posts, err := h.moderation.ListPending(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: list pending failed")
		h.reply(chatID, "Не удалось получить очередь модерации", nil)
		return
	}
	if len(posts) == 0 {
		h.reply(chatID, "Очередь модерации пуста", nil)
		return
	}
	h.reply(chatID, fmt.Sprintf("Постов на модерации: %d", len(posts)), nil)
	for i, post := range posts {
		if i == pendingListLimit {
			h.reply(chatID, fmt.Sprintf("Показаны первые %d. Остальные появятся после решения по этим", pendingListLimit), nil)
			break
		}
		h.reply(chatID, postCard(post), telegram.DecisionKeyboard(post.ID))
	}
}

func (h *Handler) handleCriteria(chatID, userID int64) {
	if !h.allowed(chatID, userID, domain.CapConfigure) {
		return
	}
	h.reply(chatID, "Текущие критерии:\n"+criteria.Describe(h.criteria.Snapshot())+"\n\nИзменить: /set <настройка> <значение>", nil)
}

func (h *Handler) handleSet(ctx context.Context, chatID, userID int64, args string) {
	if !h.allowed(chatID, userID, domain.CapConfigure) {
		return
	}
	name, value := splitFirst(args)
	if name == "" || value == "" {
		h.reply(chatID, h.buildOptionsHelp(), nil)
		return
	}
	c, err := h.criteria.SetOption(ctx, name, value)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidOption) {
			h.reply(chatID, fmt.Sprintf("Не удалось применить настройку: %v", err), nil)
			return
		}
		h.log.Error().Err(err).Str("option", name).Msg("bot: set option failed")
		h.reply(chatID, "Не удалось сохранить критерии, попробуйте позже", nil)
		return
	}
	h.log.Info().Int64("admin", userID).Str("option", name).Str("value", value).Msg("bot: criteria updated")
	for _, o := range criteria.Options() {
		if o.Name == strings.ToLower(name) {
			h.reply(chatID, fmt.Sprintf("%s = %s", o.Name, o.Value(c)), nil)
			return
		}
	}
	h.reply(chatID, "Настройка сохранена", nil)
}

// handleDecision возвращает короткий ответ для callback-кнопки.
func (h *Handler) handleDecision(ctx context.Context, chatID, userID int64, postID string, verdict domain.Verdict, reason string) string {
	if postID == "" {
		h.reply(chatID, "Укажите ID поста: /approve <id> или /reject <id> <причина>", nil)
		return ""
	}
	post, err := h.moderation.Decide(ctx, domain.Decision{PostID: postID, Verdict: verdict, AdminID: userID, Reason: reason})
	var text, answer string
	switch {
	case err == nil && post.State == domain.PostStatePublished:
		text, answer = fmt.Sprintf("Пост %s одобрен и опубликован", post.ID), "Опубликовано"
	case err == nil:
		text, answer = fmt.Sprintf("Пост %s отклонён", post.ID), "Отклонено"
	case errors.Is(err, domain.ErrPublicationFailed):
		text, answer = fmt.Sprintf("Пост %s одобрен, но публикация не удалась. Повтор будет выполнен автоматически", postID), "Одобрено"
	case errors.Is(err, domain.ErrForbidden):
		text, answer = "Недостаточно прав", "Недостаточно прав"
	case errors.Is(err, domain.ErrPostNotFound):
		text, answer = "Пост не найден", "Пост не найден"
	case errors.Is(err, domain.ErrAlreadyDecided):
		text, answer = fmt.Sprintf("По посту %s уже принято решение: %s", postID, stateLabel(post.State)), "Решение уже принято"
	case errors.Is(err, domain.ErrLifecycleViolation):
		text, answer = fmt.Sprintf("Пост %s не ожидает решения: %s", postID, stateLabel(post.State)), "Пост не ожидает решения"
	default:
		h.log.Error().Err(err).Str("post", postID).Msg("bot: decision failed")
		text, answer = "Не удалось применить решение, попробуйте позже", "Ошибка"
	}
	h.reply(chatID, text, nil)
	return answer
}

func (h *Handler) handleStuck(ctx context.Context, chatID, userID int64) {
	if !h.allowed(chatID, userID, domain.CapModerate) {
		return
	}
	posts, err := h.moderation.ListStuck(ctx)
	if err != nil {
		h.log.Error().Err(err).Msg("bot: list stuck failed")
		h.reply(chatID, "Не удалось получить список постов", nil)
		return
	}
	if len(posts) == 0 {
		h.reply(chatID, "Застрявших постов нет", nil)
		return
	}
	var b strings.Builder
	b.WriteString("Посты, которые не удалось опубликовать:\n")
	for _, p := range posts {
		fmt.Fprintf(&b, "\n%s — попыток: %d, ошибка: %s", p.ID, p.Publication.Attempts, p.Publication.LastError)
	}
	b.WriteString("\n\nПовторить: /retry <id>, удалить: /purge <id>")
	h.reply(chatID, b.String(), nil)
}

func (h *Handler) handleRetry(ctx context.Context, chatID, userID int64, postID string) {
	if postID == "" {
		h.reply(chatID, "Отправьте /retry <id>", nil)
		return
	}
	post, err := h.moderation.RetryPost(ctx, userID, postID)
	switch {
	case err == nil:
		h.reply(chatID, fmt.Sprintf("Пост %s опубликован", post.ID), nil)
	case errors.Is(err, domain.ErrForbidden):
		h.reply(chatID, "Недостаточно прав", nil)
	case errors.Is(err, domain.ErrPostNotFound):
		h.reply(chatID, "Пост не найден", nil)
	case errors.Is(err, domain.ErrLifecycleViolation):
		h.reply(chatID, fmt.Sprintf("Повторить можно только одобренный пост, текущее состояние: %s", stateLabel(post.State)), nil)
	case errors.Is(err, domain.ErrPublicationFailed):
		h.reply(chatID, fmt.Sprintf("Публикация снова не удалась: %v", err), nil)
	default:
		h.log.Error().Err(err).Str("post", postID).Msg("bot: retry failed")
		h.reply(chatID, "Не удалось повторить публикацию", nil)
	}
}

func (h *Handler) handlePurge(ctx context.Context, chatID, userID int64, postID string) {
	if postID == "" {
		h.reply(chatID, "Отправьте /purge <id>", nil)
		return
	}
	err := h.moderation.Purge(ctx, userID, postID)
	switch {
	case err == nil:
		h.reply(chatID, fmt.Sprintf("Пост %s удалён", postID), nil)
	case errors.Is(err, domain.ErrForbidden):
		h.reply(chatID, "Недостаточно прав", nil)
	case errors.Is(err, domain.ErrPostNotFound):
		h.reply(chatID, "Пост не найден", nil)
	default:
		h.log.Error().Err(err).Str("post", postID).Msg("bot: purge failed")
		h.reply(chatID, "Не удалось удалить пост", nil)
	}
}

func (h *Handler) handleRole(ctx context.Context, chatID, userID int64, args string, grant bool) {
	if !h.allowed(chatID, userID, domain.CapConfigure) {
		return
	}
	rawID, rawRole := splitFirst(args)
	target, err := strconv.ParseInt(rawID, 10, 64)
	role, ok := domain.ParseRole(rawRole)
	if err != nil || !ok {
		h.reply(chatID, "Отправьте /grant <user_id> <admin|submitter|subscriber> или /revoke с теми же аргументами", nil)
		return
	}
	if grant {
		err = h.access.Grant(ctx, target, role)
	} else {
		err = h.access.Revoke(ctx, target, role)
	}
	if err != nil {
		h.log.Error().Err(err).Int64("target", target).Str("role", string(role)).Msg("bot: role change failed")
		h.reply(chatID, "Не удалось изменить роль", nil)
		return
	}
	h.log.Info().Int64("admin", userID).Int64("target", target).Str("role", string(role)).Bool("grant", grant).Msg("bot: role changed")
	h.reply(chatID, fmt.Sprintf("Роли пользователя %d: %s", target, rolesLabel(h.access.Roles(target))), nil)
}

func (h *Handler) allowed(chatID, userID int64, c domain.Capability) bool {
	if h.access.Can(userID, c) {
		return true
	}
	h.reply(chatID, "Недостаточно прав для этой команды", nil)
	return false
}

func (h *Handler) reply(chatID int64, text string, keyboard *tgbotapi.InlineKeyboardMarkup) {
	parts := telegram.SplitMessage(text, telegram.MessageLimit)
	for i, part := range parts {
		msg := tgbotapi.NewMessage(chatID, part)
		if i == 0 && keyboard != nil {
			msg.ReplyMarkup = keyboard
		}
		start := time.Now()
		_, err := h.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func (h *Handler) buildStartMessage(userID int64) string {
	var b strings.Builder
	b.WriteString("👋 Привет! Я слежу за чатами и каналами и сообщаю о важных сообщениях.\n\n")
	fmt.Fprintf(&b, "Ваши роли: %s\n\n", rolesLabel(h.access.Roles(userID)))
	b.WriteString(h.buildHelpMessage(userID))
	return b.String()
}

func (h *Handler) buildHelpMessage(userID int64) string {
	var b strings.Builder
	b.WriteString("Подписка:\n")
	b.WriteString("/monitor @alias — отслеживать источник\n")
	b.WriteString("/unmonitor @alias — перестать отслеживать\n")
	b.WriteString("/sources — мои источники и настройки\n")
	b.WriteString("/threshold 0.6 — личный порог важности\n")
	b.WriteString("/keyword слово — повышать важность\n")
	b.WriteString("/unkeyword слово — убрать ключевое слово\n")
	b.WriteString("/exclude слово — понижать важность\n")
	b.WriteString("/unexclude слово — убрать исключение\n")
	if h.access.Can(userID, domain.CapSubmit) {
		b.WriteString("\nПубликация:\n/submit текст — предложить пост в канал\n")
	}
	if h.access.Can(userID, domain.CapModerate) {
		b.WriteString("\nМодерация:\n")
		b.WriteString("/pending — очередь модерации\n")
		b.WriteString("/approve <id> — одобрить пост\n")
		b.WriteString("/reject <id> <причина> — отклонить пост\n")
		b.WriteString("/stuck — посты, которые не удалось опубликовать\n")
		b.WriteString("/retry <id> — повторить публикацию\n")
		b.WriteString("/purge <id> — удалить пост\n")
	}
	if h.access.Can(userID, domain.CapConfigure) {
		b.WriteString("\nНастройки:\n")
		b.WriteString("/criteria — текущие критерии\n")
		b.WriteString("/set <настройка> <значение> — изменить критерий\n")
		b.WriteString("/grant <user_id> <роль>, /revoke <user_id> <роль> — роли\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func (h *Handler) buildOptionsHelp() string {
	var b strings.Builder
	b.WriteString("Отправьте /set <настройка> <значение>. Для списков: «+a,b» добавляет, «-a» удаляет.\n\n")
	for _, o := range criteria.Options() {
		fmt.Fprintf(&b, "%s — %s\n", o.Name, o.Help)
	}
	return strings.TrimRight(b.String(), "\n")
}

func postCard(p domain.Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "ID: %s\n", p.ID)
	if p.HasSubmitter() {
		fmt.Fprintf(&b, "Автор: %d\n", p.SubmitterID)
	}
	if src := p.SourceLabel(); src != "" {
		fmt.Fprintf(&b, "Источник: %s\n", src)
	}
	if p.Score != nil {
		fmt.Fprintf(&b, "Важность: %.2f\n", p.Score.Final)
	}
	text := p.Text
	if utf8.RuneCountInString(text) > 500 {
		text = string([]rune(text)[:500]) + "..."
	}
	b.WriteString("\n" + text)
	return b.String()
}

func stateLabel(s domain.PostState) string {
	switch s {
	case domain.PostStatePendingReview:
		return "на модерации"
	case domain.PostStateApproved:
		return "одобрен"
	case domain.PostStateRejected:
		return "отклонён"
	case domain.PostStatePublished:
		return "опубликован"
	case domain.PostStateSubmitted:
		return "создан"
	default:
		return "неизвестно"
	}
}

func rolesLabel(rs domain.RoleSet) string {
	if len(rs) == 0 {
		return string(domain.RoleSubscriber)
	}
	names := make([]string, 0, len(rs))
	for _, r := range rs {
		names = append(names, string(r))
	}
	return strings.Join(names, ", ")
}

func splitFirst(args string) (string, string) {
	first, rest, _ := strings.Cut(strings.TrimSpace(args), " ")
	return strings.TrimSpace(first), strings.TrimSpace(rest)
}

// ParseList разбирает список слов, разделённых запятыми или переводами строк.
func ParseList(input string) []string {
	fields := strings.FieldsFunc(input, func(r rune) bool { return r == ',' || r == '\n' || r == ';' })
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func listOrDash(items []string) string {
	if len(items) == 0 {
		return "—"
	}
	return strings.Join(items, ", ")
}
