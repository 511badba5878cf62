package subscription

type Kind string

const (
	KindPosted   Kind = "posted"
	KindLiked    Kind = "liked"
	KindEdited   Kind = "edited"
	KindDeleted  Kind = "deleted"
	KindReported Kind = "reported"
)

// Event сообщает подписчикам треда, что дерево комментариев нужно перезагрузить.
// Failed - мутация не прошла, но перезагрузка все равно нужна.
type Event struct {
	ThreadID string `json:"threadId"`
	Kind     Kind   `json:"kind"`
	Path     string `json:"path,omitempty"`
	ActorID  string `json:"actorId,omitempty"`
	Failed   bool   `json:"failed,omitempty"`
}
