package models

const (
	CompanyInfoName  = "company_info"
	ProspectInfoName = "prospect_info"

	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 0
	DefaultTemperature  = 0.5
	MinTemperature      = 0.0
	MaxTemperature      = 2.0

	SummarySeparator = "\n"
)

// DefaultSeparators are tried coarsest first when splitting text.
var DefaultSeparators = []string{"\n\n", "\n", " ", ""}

var (
	MapPromptTemplate = ` 
    % MAP PROMPT

    Below is a section of a website about {prospect}

    Write a concise summary about {prospect}. If the information is not about {prospect}, exclude it from your summary.

    {text} 
    `

	CombinePromptTemplate = `
    % COMBINE PROMPT

    Your goal is to write a personalized outbound email from {sales_rep}, a sales rep at {company} to {prospect}.

    A good email is personalized and combines information about the two companies on how they can help each other.
    Be sure to use value selling: A sales methodology that focuses on how your product or service will provide value to the customer instead of focusing on price or solution.

    % INFORMATION ABOUT {company}:
    {company_information}

    % INFORMATION ABOUT {prospect}:
    {text}

    % INCLUDE THE FOLLOWING PIECES IN YOUR RESPONSE:
        - Start the email with the sentence: "We love that {prospect} helps teams..." then insert what they help teams do.
        - The sentence: "We can help you do XYZ by ABC" Replace XYZ with what {prospect} does and ABC with what {company} does 
        - A 1-2 sentence description about {company}, be brief
        - End your email with a call-to-action such as asking them to set up time to talk more 
    `
)

var (
	MapPromptVariables     = []string{"text", "prospect"}
	CombinePromptVariables = []string{"company", "company_information", "sales_rep", "prospect", "text"}
)
