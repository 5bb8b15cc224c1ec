package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"

	"murmur/internal/chats"
	"murmur/internal/config"
	"murmur/internal/gateway"
	"murmur/internal/i18n"
	"murmur/internal/markup"
	"murmur/internal/models"
	"murmur/internal/pagecontext"
	"murmur/internal/speech"
)

type Deps struct {
	Chats    *chats.Repository
	Settings *config.Store
	Gateway  gateway.Gateway
	Output   Speaker
	Input    Listener
	Confirm  Confirmer
	// Document is the extracted text of the context document.
	Document string
}

type Orchestrator struct {
	chats    *chats.Repository
	settings *config.Store
	gw       gateway.Gateway
	out      Speaker
	in       Listener
	confirm  Confirmer
	document string

	ctx        context.Context
	state      State
	transcript []Entry
	pending    map[string]pendingCall
	failures   map[string][]Entry // system entries of failed calls, by chat
	chatList   []models.ChatSummary
	notice     Notice
	confirming *Prompt
	models     []models.AIModel
	newCallID  func() string
}

func New(d Deps) *Orchestrator {
	o := &Orchestrator{
		chats:     d.Chats,
		settings:  d.Settings,
		gw:        d.Gateway,
		out:       d.Output,
		in:        d.Input,
		confirm:   d.Confirm,
		document:  d.Document,
		ctx:       context.Background(),
		pending:   map[string]pendingCall{},
		failures:  map[string][]Entry{},
		newCallID: uuid.NewString,
	}
	o.out.Subscribe(o.onOutputEvent)
	return o
}

func (o *Orchestrator) lang() models.Language {
	return o.settings.Get().Language
}

func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) Models() []models.AIModel { return o.models }

func (o *Orchestrator) notify(level NoticeLevel, text string) {
	o.notice = Notice{Text: text, Level: level}
}

func (o *Orchestrator) ClearNotice() {
	o.notice = Notice{}
}

// Restore reactivates the chat that was active when the program last ran and
// starts loading the voice catalogue.
func (o *Orchestrator) Restore() tea.Cmd {
	if id, ok := o.chats.ActiveID(o.ctx); ok {
		if s, err := o.chats.Get(o.ctx, id); err == nil {
			o.state = ActiveChat(id)
			o.load(s)
		}
	}
	o.refreshList()
	return o.out.LoadVoices()
}

func (o *Orchestrator) refreshList() {
	list, err := o.chats.List(o.ctx)
	if err != nil {
		slog.Warn("listing chats failed", "error", err)
		list = nil
	}
	o.chatList = list
}

// load replaces the transcript with the messages of s, with loading entries
// for calls still in flight for that chat.
func (o *Orchestrator) load(s models.ChatSession) {
	entries := make([]Entry, 0, len(s.Messages)+len(o.pending))
	for _, m := range s.Messages {
		entries = append(entries, messageEntry(m))
	}
	entries = append(entries, o.failures[s.ID]...)
	for callID, call := range o.pending {
		if call.chatID == s.ID {
			entries = append(entries, Entry{Key: callID, Kind: EntryLoading, Seq: call.seq})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Seq < entries[j].Seq })
	o.transcript = entries
}

func messageEntry(m models.ChatMessage) Entry {
	return Entry{Key: "m" + strconv.FormatInt(m.Seq, 10), Kind: EntryMessage, Seq: m.Seq, Message: m}
}

func (o *Orchestrator) systemEntry(text string) Entry {
	return Entry{
		Key:     "s" + o.newCallID(),
		Kind:    EntrySystem,
		Message: models.ChatMessage{Role: models.RoleSystem, Content: text},
	}
}

func (o *Orchestrator) activate(id string) {
	o.state = ActiveChat(id)
	if err := o.chats.SetActiveID(o.ctx, id); err != nil {
		slog.Warn("persisting active chat failed", "chat_id", id, "error", err)
	}
}

func (o *Orchestrator) deactivate() {
	o.state = NoActiveChat()
	o.transcript = nil
	if err := o.chats.SetActiveID(o.ctx, ""); err != nil {
		slog.Warn("clearing active chat failed", "error", err)
	}
}

// CreateChat starts a new chat seeded with a greeting and makes it active. A
// user-initiated create is refused while any chat is still empty; that chat
// is shown instead.
func (o *Orchestrator) CreateChat(userInitiated bool) error {
	if userInitiated {
		if id, ok := o.emptyChat(); ok {
			if active, _ := o.state.Active(); active != id {
				if err := o.SwitchChat(id); err != nil {
					return err
				}
			}
			o.notify(NoticeInfo, i18n.T(o.lang(), i18n.EmptyChatExists))
			return ErrEmptyChatExists
		}
	}

	id, err := o.chats.Create(o.ctx)
	if err != nil {
		slog.Error("creating chat failed", "error", err)
		o.notify(NoticeError, i18n.T(o.lang(), i18n.StorageFailed, err.Error()))
		return err
	}
	greeting := models.ChatMessage{Role: models.RoleBot, Content: i18n.T(o.lang(), i18n.Greeting)}
	if _, err := o.chats.AppendMessage(o.ctx, id, greeting); err != nil {
		slog.Warn("seeding greeting failed", "chat_id", id, "error", err)
	}

	o.out.Stop()
	o.activate(id)
	if s, err := o.chats.Get(o.ctx, id); err == nil {
		o.load(s)
	} else {
		o.transcript = nil
	}
	o.refreshList()
	slog.Info("chat created", "chat_id", id, "user_initiated", userInitiated)
	return nil
}

// emptyChat returns a chat the user has not written in yet, preferring the
// active one.
func (o *Orchestrator) emptyChat() (string, bool) {
	if id, ok := o.state.Active(); ok {
		if s, err := o.chats.Get(o.ctx, id); err == nil && s.IsEmpty() {
			return id, true
		}
	}
	o.refreshList()
	for _, c := range o.chatList {
		if c.IsEmpty() {
			return c.ID, true
		}
	}
	return "", false
}

// SwitchChat stops any speech and shows chat id.
func (o *Orchestrator) SwitchChat(id string) error {
	o.out.Stop()
	s, err := o.chats.Get(o.ctx, id)
	if err != nil {
		o.refreshList()
		o.notify(NoticeWarn, i18n.T(o.lang(), i18n.ErrGeneric, err.Error()))
		return err
	}
	o.activate(id)
	o.load(s)
	o.refreshList()
	return nil
}

// DeleteChat asks for confirmation and deletes chat id once confirmed.
func (o *Orchestrator) DeleteChat(id string) tea.Cmd {
	title := id
	for _, c := range o.chatList {
		if c.ID == id {
			title = c.Title
		}
	}
	return o.ask(Prompt{Text: i18n.T(o.lang(), i18n.ConfirmDelete, title)}, deleteRequest{id: id})
}

// DeleteAllChats asks for confirmation and clears the whole history.
func (o *Orchestrator) DeleteAllChats() tea.Cmd {
	return o.ask(Prompt{Text: i18n.T(o.lang(), i18n.ConfirmDeleteAll)}, deleteRequest{all: true})
}

func (o *Orchestrator) ask(p Prompt, req deleteRequest) tea.Cmd {
	o.confirming = &p
	confirm := o.confirm
	ctx := o.ctx
	return func() tea.Msg {
		d, err := confirm.Confirm(ctx, p)
		return deleteDecisionMsg{req: req, decision: d, err: err}
	}
}

func (o *Orchestrator) applyDelete(msg deleteDecisionMsg) {
	o.confirming = nil
	if msg.err != nil {
		slog.Warn("confirmation failed", "error", msg.err)
		return
	}
	if msg.decision != Confirmed {
		return
	}

	activeID, _ := o.state.Active()
	if msg.req.all {
		o.out.Stop()
		if err := o.chats.DeleteAll(o.ctx); err != nil {
			slog.Error("deleting all chats failed", "error", err)
			o.notify(NoticeError, i18n.T(o.lang(), i18n.StorageFailed, err.Error()))
			return
		}
		clear(o.pending)
		clear(o.failures)
		o.deactivate()
		o.refreshList()
		slog.Info("chat history cleared")
		return
	}

	id := msg.req.id
	if id == activeID {
		o.out.Stop()
	}
	if err := o.chats.Delete(o.ctx, id); err != nil && !errors.Is(err, chats.ErrNotFound) {
		slog.Error("deleting chat failed", "chat_id", id, "error", err)
		o.notify(NoticeError, i18n.T(o.lang(), i18n.StorageFailed, err.Error()))
		return
	}
	for callID, call := range o.pending {
		if call.chatID == id {
			delete(o.pending, callID)
		}
	}
	delete(o.failures, id)
	if id == activeID {
		o.deactivate()
	}
	o.refreshList()
	slog.Info("chat deleted", "chat_id", id)
}

// SendMessage appends text as a user message and starts a generation call.
// Blank text is ignored. With no active chat a new one is created first.
func (o *Orchestrator) SendMessage(text string) tea.Cmd {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	cfg := o.settings.Get()

	id, ok := o.state.Active()
	if !ok {
		if err := o.CreateChat(false); err != nil {
			return nil
		}
		id, _ = o.state.Active()
	}

	userMsg, err := o.chats.AppendMessage(o.ctx, id, models.ChatMessage{Role: models.RoleUser, Content: text})
	if err != nil {
		slog.Error("saving user message failed", "chat_id", id, "error", err)
		o.notify(NoticeError, i18n.T(o.lang(), i18n.StorageFailed, err.Error()))
		return nil
	}
	o.transcript = append(o.transcript, messageEntry(userMsg))
	o.refreshList()

	if !cfg.HasCredential() {
		warning := i18n.T(cfg.Language, i18n.MissingCredential)
		o.transcript = append(o.transcript, o.systemEntry(warning))
		o.notice = Notice{Text: warning, Level: NoticeWarn, OpenSettings: true}
		return nil
	}

	seq, err := o.chats.ReserveSlot(o.ctx, id)
	if err != nil {
		slog.Error("reserving reply slot failed", "chat_id", id, "error", err)
		o.notify(NoticeError, i18n.T(o.lang(), i18n.StorageFailed, err.Error()))
		return nil
	}
	callID := o.newCallID()
	o.pending[callID] = pendingCall{chatID: id, seq: seq}
	o.transcript = append(o.transcript, Entry{Key: callID, Kind: EntryLoading, Seq: seq})

	gw := o.gw
	ctx := o.ctx
	system := pagecontext.SystemPrompt(o.document, cfg.UseThinking)
	slog.Debug("generation started", "call_id", callID, "chat_id", id, "model", cfg.EffectiveModel())
	return func() tea.Msg {
		reply, err := gw.Generate(ctx, text, system)
		return GenerationResult{CallID: callID, Reply: reply, Err: err}
	}
}

func (o *Orchestrator) settle(res GenerationResult) tea.Cmd {
	call, ok := o.pending[res.CallID]
	if !ok {
		slog.Debug("dropping result of abandoned call", "call_id", res.CallID)
		return nil
	}
	delete(o.pending, res.CallID)

	activeID, _ := o.state.Active()
	visible := activeID == call.chatID

	if res.Err != nil {
		slog.Warn("generation failed", "call_id", res.CallID, "error", res.Err)
		text := o.describe(res.Err)
		o.fail(call, res.CallID, text, visible)
		if errors.Is(res.Err, gateway.ErrConfigurationMissing) {
			o.notice = Notice{Text: text, Level: NoticeWarn, OpenSettings: true}
		}
		return nil
	}

	saved, err := o.chats.FillSlot(o.ctx, call.chatID, call.seq, models.ChatMessage{Role: models.RoleBot, Content: res.Reply})
	if err != nil {
		if errors.Is(err, chats.ErrNotFound) {
			return nil
		}
		slog.Error("saving reply failed", "chat_id", call.chatID, "error", err)
		o.fail(call, res.CallID, i18n.T(o.lang(), i18n.StorageFailed, err.Error()), visible)
		return nil
	}
	if _, err := o.chats.DeriveTitle(o.ctx, call.chatID); err != nil {
		slog.Warn("deriving title failed", "chat_id", call.chatID, "error", err)
	}
	o.refreshList()

	if !visible {
		return nil
	}
	o.replace(res.CallID, messageEntry(saved))
	if o.settings.Get().UseTTS {
		return o.out.Speak(markup.ForSpeech(res.Reply))
	}
	return nil
}

// fail records a system entry in place of the call's reply. The entry stays
// with its chat for the rest of the run, so it is shown again after switching
// back. A failure in a background chat is also raised as a notice.
func (o *Orchestrator) fail(call pendingCall, callID, text string, visible bool) {
	e := o.systemEntry(text)
	e.Seq = call.seq
	o.failures[call.chatID] = append(o.failures[call.chatID], e)
	if visible {
		o.replace(callID, e)
		return
	}
	title := models.DefaultTitle
	for _, c := range o.chatList {
		if c.ID == call.chatID {
			title = c.Title
			break
		}
	}
	o.notify(NoticeError, fmt.Sprintf("%s: %s", title, text))
}

func (o *Orchestrator) replace(key string, e Entry) {
	for i := range o.transcript {
		if o.transcript[i].Key == key {
			if e.Seq == 0 {
				e.Seq = o.transcript[i].Seq
			}
			o.transcript[i] = e
			return
		}
	}
}

func (o *Orchestrator) describe(err error) string {
	lang := o.lang()
	var (
		herr *gateway.HTTPError
		nerr *gateway.NetworkError
	)
	switch {
	case errors.Is(err, gateway.ErrConfigurationMissing):
		return i18n.T(lang, i18n.MissingCredential)
	case errors.As(err, &herr):
		return i18n.T(lang, i18n.ErrHTTP, herr.Status, herr.Message)
	case errors.As(err, &nerr):
		return i18n.T(lang, i18n.ErrNetwork, nerr.Err.Error())
	case errors.Is(err, gateway.ErrMalformedResponse):
		return i18n.T(lang, i18n.ErrMalformed)
	default:
		return i18n.T(lang, i18n.ErrGeneric, err.Error())
	}
}

// Rename sets an explicit title on the active chat.
func (o *Orchestrator) Rename(title string) error {
	id, ok := o.state.Active()
	if !ok {
		return ErrNoActiveChat
	}
	if err := o.chats.Rename(o.ctx, id, title); err != nil {
		return fmt.Errorf("renaming chat: %w", err)
	}
	o.refreshList()
	return nil
}

// ToggleListening starts or stops speech recognition. Speech output is
// stopped when listening starts.
func (o *Orchestrator) ToggleListening() {
	if !o.in.Listening() {
		o.out.Stop()
	}
	tag := i18n.SpeechTag(o.lang())
	if err := o.in.Toggle(tag.String()); err != nil {
		var ierr *speech.InputError
		if !errors.As(err, &ierr) {
			ierr = &speech.InputError{Code: speech.Other, Detail: err.Error()}
		}
		o.inputFailed(ierr)
	}
}

func (o *Orchestrator) inputFailed(err *speech.InputError) {
	lang := o.lang()
	var text string
	switch err.Code {
	case speech.NoSpeech:
		text = i18n.T(lang, i18n.SpeechNoSpeech)
	case speech.PermissionDenied:
		text = i18n.T(lang, i18n.SpeechPermissionDenied)
	case speech.NetworkUnavailable:
		text = i18n.T(lang, i18n.SpeechNetworkUnavailable)
	case speech.InsecureContext:
		text = i18n.T(lang, i18n.SpeechInsecureContext)
	case speech.Unsupported:
		text = i18n.T(lang, i18n.SpeechUnsupported)
	default:
		text = i18n.T(lang, i18n.SpeechOther, err.Detail)
	}
	level := NoticeError
	if err.Informational() {
		level = NoticeInfo
	}
	o.notify(level, text)
}

func (o *Orchestrator) onOutputEvent(ev speech.OutputEvent) {
	if ev.Kind == speech.Errored && ev.Err != nil {
		o.notify(NoticeError, i18n.T(o.lang(), i18n.SpeechOutputFailed, ev.Err.Error()))
	}
}

func (o *Orchestrator) PauseSpeech()  { o.out.Pause() }
func (o *Orchestrator) ResumeSpeech() { o.out.Resume() }
func (o *Orchestrator) StopSpeech()   { o.out.Stop() }

// RefreshModels fetches the model catalogue from the gateway.
func (o *Orchestrator) RefreshModels() tea.Cmd {
	gw := o.gw
	ctx := o.ctx
	return func() tea.Msg {
		list, err := gw.ListModels(ctx)
		return modelsLoadedMsg{models: list, err: err}
	}
}

// Update applies asynchronous results. It returns follow-up work, if any.
func (o *Orchestrator) Update(msg tea.Msg) tea.Cmd {
	switch msg := msg.(type) {
	case GenerationResult:
		return o.settle(msg)
	case deleteDecisionMsg:
		o.applyDelete(msg)
		return nil
	case modelsLoadedMsg:
		if msg.err != nil {
			slog.Warn("listing models failed", "error", msg.err)
			o.notify(NoticeError, o.describe(msg.err))
			return nil
		}
		o.models = msg.models
		o.notify(NoticeInfo, i18n.T(o.lang(), i18n.ModelsRefreshed, len(msg.models)))
		return nil
	case speech.TranscriptReady:
		return o.SendMessage(msg.Text)
	case speech.InputFailed:
		o.inputFailed(msg.Err)
		return nil
	}
	return tea.Batch(o.out.Update(msg), o.in.Update(msg))
}

// Snapshot returns what the view needs to render the current state.
func (o *Orchestrator) Snapshot() View {
	cfg := o.settings.Get()
	activeID, _ := o.state.Active()

	items := make([]ChatItem, 0, len(o.chatList))
	for _, c := range o.chatList {
		items = append(items, ChatItem{ChatSummary: c, Active: c.ID == activeID})
	}

	status := i18n.T(cfg.Language, i18n.ModelStatus, cfg.EffectiveModel())
	if cfg.UseThinking {
		status = i18n.T(cfg.Language, i18n.ModelStatusThink, cfg.EffectiveModel())
	}

	return View{
		State:       o.state,
		Entries:     append([]Entry(nil), o.transcript...),
		Chats:       items,
		Output:      o.out.State(),
		Listening:   o.in.Listening(),
		Interim:     o.in.Interim(),
		Notice:      o.notice,
		Confirm:     o.confirming,
		ModelStatus: status,
		Config:      cfg,
		InFlight:    len(o.pending),
	}
}
