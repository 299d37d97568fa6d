package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "CREDENCIAIS_INVALIDAS"
	ErrSessionReplaced    ErrCode = "SESSAO_SUBSTITUIDA"
	ErrTokenRequired      ErrCode = "TOKEN_OBRIGATORIO"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALIDO"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRADO"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "ACESSO_NEGADO"
	ErrStudentAccessOnly ErrCode = "SOMENTE_ALUNOS"
	ErrStaffAccessOnly   ErrCode = "SOMENTE_EQUIPE"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDACAO"
	ErrInvalidID      ErrCode = "ID_INVALIDO"
	ErrInvalidPayload ErrCode = "PAYLOAD_INVALIDO"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NAO_ENCONTRADO"
	ErrConflict ErrCode = "CONFLITO"

	// ─── Scheduling ────────────────────────────────────────────────────
	ErrSimuladoBlocked  ErrCode = "SIMULADO_BLOQUEADO"
	ErrAlreadyCompleted ErrCode = "SIMULADO_JA_CONCLUIDO"
	ErrOutsideWindow    ErrCode = "SIMULADO_FORA_DO_HORARIO"
	ErrNoEnrollment     ErrCode = "ALUNO_SEM_TURMA"
	ErrSimuladoNotFound ErrCode = "SIMULADO_NAO_ENCONTRADO"
	ErrNoQuestions      ErrCode = "NO_QUESTIONS"

	// ─── Attempt ───────────────────────────────────────────────────────
	ErrAttemptNotFound   ErrCode = "TENTATIVA_NAO_ENCONTRADA"
	ErrAttemptFinished   ErrCode = "TENTATIVA_FINALIZADA"
	ErrInvalidPosition   ErrCode = "QUESTAO_INVALIDA"
	ErrInvalidAnswer     ErrCode = "RESPOSTA_INVALIDA"
	ErrIncomplete        ErrCode = "RESPOSTAS_INCOMPLETAS"
	ErrNotBlocked        ErrCode = "NAO_BLOQUEADO"
	ErrAttemptInProgress ErrCode = "TENTATIVA_EM_ANDAMENTO"

	// ─── Simulado administration ───────────────────────────────────────
	ErrQuestionLimit     ErrCode = "LIMITE_QUESTOES"
	ErrQuestionLinked    ErrCode = "QUESTAO_JA_VINCULADA"
	ErrQuestionNotLinked ErrCode = "QUESTAO_NAO_VINCULADA"
	ErrInvalidWindow     ErrCode = "JANELA_INVALIDA"
	ErrSameTurma         ErrCode = "MESMA_TURMA"
	ErrDuplicateSimulado ErrCode = "SIMULADO_DUPLICADO"
	ErrLimitBelowLinked  ErrCode = "LIMITE_ABAIXO_VINCULADAS"
	ErrQuestionInUse     ErrCode = "QUESTAO_EM_USO"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "ERRO_INTERNO"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Matrícula ou senha incorretos."
	case ErrSessionReplaced:
		return "Sua sessão foi encerrada por um novo login. Entre novamente."
	case ErrTokenRequired:
		return "Token de autenticação obrigatório."
	case ErrTokenInvalid:
		return "Token de autenticação inválido."
	case ErrTokenExpired:
		return "Token de autenticação expirado."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Você não tem permissão para acessar este recurso."
	case ErrStudentAccessOnly:
		return "Recurso restrito a alunos."
	case ErrStaffAccessOnly:
		return "Recurso restrito à equipe pedagógica."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Falha na validação. Verifique os dados enviados."
	case ErrInvalidID:
		return "Formato de ID inválido."
	case ErrInvalidPayload:
		return "Payload da requisição inválido."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Recurso não encontrado."
	case ErrConflict:
		return "O recurso já existe."

	// ─── Scheduling ────────────────────────────────────────────────────
	case ErrSimuladoBlocked:
		return "Simulado bloqueado. Procure a coordenação para liberação."
	case ErrAlreadyCompleted:
		return "Você já concluiu este simulado."
	case ErrOutsideWindow:
		return "Simulado fora do horário de aplicação."
	case ErrNoEnrollment:
		return "Aluno sem turma no ano letivo atual."
	case ErrSimuladoNotFound:
		return "Simulado não encontrado para a sua turma."
	case ErrNoQuestions:
		return "Simulado sem questões cadastradas."

	// ─── Attempt ───────────────────────────────────────────────────────
	case ErrAttemptNotFound:
		return "Tentativa não encontrada."
	case ErrAttemptFinished:
		return "Tentativa já finalizada."
	case ErrInvalidPosition:
		return "Questão inválida."
	case ErrInvalidAnswer:
		return "Resposta inválida."
	case ErrIncomplete:
		return "Responda todas as questões antes de enviar."
	case ErrNotBlocked:
		return "A tentativa não está bloqueada."
	case ErrAttemptInProgress:
		return "O resultado fica disponível quando a tentativa for finalizada."

	// ─── Simulado administration ───────────────────────────────────────
	case ErrQuestionLimit:
		return "Limite de questões do simulado atingido."
	case ErrQuestionLinked:
		return "Questão já vinculada a este simulado."
	case ErrQuestionNotLinked:
		return "Questão não vinculada a este simulado."
	case ErrInvalidWindow:
		return "O fim da aplicação deve ser posterior ao início."
	case ErrSameTurma:
		return "A turma de destino deve ser diferente da turma de origem."
	case ErrDuplicateSimulado:
		return "Já existe um simulado igual para a turma de destino."
	case ErrLimitBelowLinked:
		return "O número de questões não pode ser menor que o de questões vinculadas."
	case ErrQuestionInUse:
		return "Questão vinculada a simulados ou já respondida; desvincule antes de excluir."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Muitas tentativas. Tente novamente mais tarde."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Erro interno do servidor."
	default:
		return "Ocorreu um erro inesperado."
	}
}
