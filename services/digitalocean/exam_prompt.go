package digitalocean

import (
	"fmt"
	"strings"
)

const examSystemPrompt = `Você é um especialista em análise de provas de concursos públicos e vestibulares.
Extraia, analise e estruture cada questão individualmente a partir do texto da prova e do gabarito.
Responda somente com um objeto JSON válido, sem markdown e sem comentários.`

const examFieldInstructions = `Para CADA questão do intervalo, inclua um objeto na lista "questions" com os campos:
- "original_number": (inteiro) número da questão na prova.
- "statement": (string) enunciado completo, sem o prefixo "Questão X".
- "item_a" .. "item_e": (string ou null) texto de cada alternativa.
- "explanation_a" .. "explanation_e": (string ou null) explicação curta de cada alternativa.
- "item_text": (string ou null) afirmativa julgada, apenas para questões Certo/Errado.
- "explanation_text": (string ou null) explicação da afirmativa Certo/Errado.
- "correct_option": (string) "A".."E", "CERTO", "ERRADO", "ANULADA" ou "INDEFINIDA". Use o gabarito como fonte primária.
- "reference_text": (string ou null) texto de apoio da questão.
- "reference_image_description": (string ou null) descrição detalhada de imagem referenciada.
- "subject": (string) disciplina ampla, ex. "Língua Portuguesa".
- "topic": (string) tópico dentro da disciplina.
- "subtopic": (string ou null) subtópico, se aplicável.
- "knowledge_area": (string) apenas "Conhecimentos Básicos", "Conhecimentos Específicos" ou "Conhecimentos Gerais".
- "question_style": (string) apenas "ME5", "ME4" ou "CE".
- "difficulty_level": (inteiro) de 1 (muito fácil) a 5 (muito difícil).
- "confidence_score": (número) de 0.0 a 1.0.

Escape aspas duplas dentro de strings com \".
Se não conseguir processar o documento, responda {"questions": []}.`

func buildExamPrompt(req AnalysisRequest, booklet, answerKey string) string {
	var b strings.Builder

	b.WriteString("Metadados da prova:\n")
	fmt.Fprintf(&b, "- Ano: %s\n", orNA(req.Metadata.Year))
	fmt.Fprintf(&b, "- Banca organizadora: %s\n", orNA(req.Metadata.AdministeringBody))
	fmt.Fprintf(&b, "- Órgão: %s\n", orNA(req.Metadata.Institution))
	fmt.Fprintf(&b, "- Cargo/Prova: %s\n", orNA(req.Metadata.DisplayName))
	fmt.Fprintf(&b, "- Nível de escolaridade: %s\n\n", orNA(req.Metadata.EducationLevel))

	if req.LastQuestion > 0 {
		fmt.Fprintf(&b, "Analise APENAS as questões de número %d até %d.\n", req.FirstQuestion, req.LastQuestion)
	} else {
		fmt.Fprintf(&b, "Analise as questões a partir do número %d até o final da prova.\n", req.FirstQuestion)
	}
	b.WriteString(examFieldInstructions)

	b.WriteString("\n\n=== PROVA ===\n")
	b.WriteString(booklet)
	if answerKey != "" {
		b.WriteString("\n\n=== GABARITO ===\n")
		b.WriteString(answerKey)
	}

	return b.String()
}

func orNA(s string) string {
	if strings.TrimSpace(s) == "" {
		return "N/A"
	}
	return s
}
